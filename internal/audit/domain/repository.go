package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	EventType    string
	Severity     Severity
	Outcome      Outcome
	ResourceType string
	ActorOrgID   snowflake.ID
	StartAt      *time.Time
	EndAt        *time.Time
	Cursor       *Cursor
	Limit        int
}

type Cursor struct {
	ID        string
	CreatedAt time.Time
}

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, events []*AuditEvent) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditEvent, error)
	Stats(ctx context.Context, db *gorm.DB, filter ListFilter) (Stats, error)
	DeleteOlderThan(ctx context.Context, db *gorm.DB, severities []Severity, before time.Time) (int64, error)
}
