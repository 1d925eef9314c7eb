package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// Credential stores a hashed long-lived secret scoped to an owner. Only the
// sha256 of the raw secret is ever persisted; the secret_hash column carries
// a unique index so that at most one credential can answer for a presented
// secret, and rotation swaps the hash in place so exactly one hash is ever
// valid for a given id.
type Credential struct {
	ID                   snowflake.ID   `gorm:"primaryKey"`
	OwnerOrgID           snowflake.ID   `gorm:"column:owner_org_id;not null;index"`
	OwnerUserID          snowflake.ID   `gorm:"column:owner_user_id;not null;index"`
	Name                 string         `gorm:"type:text;not null"`
	Scopes               pq.StringArray `gorm:"type:text[];not null"`
	SecretHash           string         `gorm:"column:secret_hash;type:text;not null;uniqueIndex:ux_credentials_secret_hash"`
	QuotaPerMinute       int64          `gorm:"column:quota_per_minute;not null;default:0"`
	QuotaPerHour         int64          `gorm:"column:quota_per_hour;not null;default:0"`
	QuotaPerDay          int64          `gorm:"column:quota_per_day;not null;default:0"`
	QuotaBurst           int            `gorm:"column:quota_burst;not null;default:0"`
	IsActive             bool           `gorm:"column:is_active;not null;default:true"`
	RotationIntervalDays int            `gorm:"column:rotation_interval_days;not null;default:0"`
	CreatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ExpiresAt            *time.Time     `gorm:"column:expires_at"`
	LastUsedAt           *time.Time     `gorm:"column:last_used_at"`
}

// TableName sets the database table name.
func (Credential) TableName() string { return "credentials" }

// Expired reports whether the credential is past its expiry at the given
// instant. Expiry is checked lazily at validation time, never by a sweep.
func (c *Credential) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}
