package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Severity ranks how notable a security event is; retention windows and
// operator alerting key off it.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Outcome classifies what happened to the audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBlocked Outcome = "blocked"
)

// AuditEvent is the durable, append-only record of a security-relevant
// decision. Rows are never mutated after insertion.
type AuditEvent struct {
	ID           string            `gorm:"primaryKey;type:text" json:"id"`
	EventType    string            `gorm:"column:event_type;type:text;not null;index" json:"event_type"`
	Severity     Severity          `gorm:"type:text;not null;index" json:"severity"`
	ActorUserID  *snowflake.ID     `gorm:"column:actor_user_id" json:"actor_user_id,omitempty"`
	ActorOrgID   *snowflake.ID     `gorm:"column:actor_org_id;index" json:"actor_org_id,omitempty"`
	ResourceType *string           `gorm:"column:resource_type;type:text" json:"resource_type,omitempty"`
	ResourceID   *string           `gorm:"column:resource_id;type:text" json:"resource_id,omitempty"`
	Operation    string            `gorm:"type:text;not null" json:"operation"`
	Outcome      Outcome           `gorm:"type:text;not null" json:"outcome"`
	Details      datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`
	IPAddress    *string           `gorm:"column:ip_address;type:text" json:"ip_address,omitempty"`
	UserAgent    *string           `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditEvent) TableName() string { return "audit_events" }
