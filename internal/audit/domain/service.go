package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentra/pkg/db/pagination"
)

// Event is the caller-facing shape of an audit record before enrichment.
// Actor fields left empty are resolved from the request context.
type Event struct {
	EventType    string
	Severity     Severity
	ActorUserID  *snowflake.ID
	ActorOrgID   *snowflake.ID
	ResourceType string
	ResourceID   string
	Operation    string
	Outcome      Outcome
	Details      map[string]any
}

type ListRequest struct {
	pagination.Pagination
	EventType    string
	Severity     Severity
	Outcome      Outcome
	ResourceType string
	ActorOrgID   snowflake.ID
	StartAt      *time.Time
	EndAt        *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Events []AuditEvent `json:"events"`
}

// Stats aggregates counts over the filtered events.
type Stats struct {
	Total      int64              `json:"total"`
	BySeverity map[Severity]int64 `json:"by_severity"`
	ByOutcome  map[Outcome]int64  `json:"by_outcome"`
}

// ExportFormat selects the serialization of an audit report.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// Service records and reads security audit events. Record buffers in memory
// and never blocks the caller on durable persistence; Query and Stats read
// the durable store directly, so events younger than the flush interval may
// not yet be visible.
type Service interface {
	Record(ctx context.Context, event Event)
	Query(ctx context.Context, req ListRequest) (ListResponse, error)
	Stats(ctx context.Context, req ListRequest) (Stats, error)
	ExportReport(ctx context.Context, req ListRequest, format ExportFormat) ([]byte, error)
	Purge(ctx context.Context) (int64, error)
	Flush(ctx context.Context) error
}

var (
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidFormat    = errors.New("invalid_export_format")
)
