package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/sentra/internal/actorcontext"
	"github.com/smallbiznis/sentra/internal/audit/buffer"
	"github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/smallbiznis/sentra/internal/audit/masking"
	"github.com/smallbiznis/sentra/internal/clock"
	"github.com/smallbiznis/sentra/internal/config"
	"github.com/smallbiznis/sentra/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   domain.Repository
	Buffer *buffer.Buffer
	Config config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	repo   domain.Repository
	buffer *buffer.Buffer
	cfg    config.Config
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("audit.service"),
		clock:  p.Clock,
		repo:   p.Repo,
		buffer: p.Buffer,
		cfg:    p.Config,
	}
}

// Record enriches the event from context and appends it to the flush buffer.
// It never blocks on the durable store. When the buffer is gone the event is
// written to the process log instead, never silently dropped.
func (s *Service) Record(ctx context.Context, event domain.Event) {
	eventType := strings.TrimSpace(event.EventType)
	if eventType == "" {
		s.log.Warn("dropping audit event without type")
		return
	}

	severity := event.Severity
	if severity == "" {
		severity = domain.SeverityLow
	}
	outcome := event.Outcome
	if outcome == "" {
		outcome = domain.OutcomeSuccess
	}

	entry := &domain.AuditEvent{
		ID:          newEventID(s.clock.Now()),
		EventType:   eventType,
		Severity:    severity,
		ActorUserID: event.ActorUserID,
		ActorOrgID:  s.resolveOrgID(ctx, event.ActorOrgID),
		Operation:   strings.TrimSpace(event.Operation),
		Outcome:     outcome,
		CreatedAt:   s.clock.Now(),
	}

	if entry.ActorUserID == nil {
		if userID, ok := actorcontext.UserIDFromContext(ctx); ok {
			entry.ActorUserID = &userID
		}
	}
	if resourceType := strings.TrimSpace(event.ResourceType); resourceType != "" {
		entry.ResourceType = &resourceType
	}
	if resourceID := strings.TrimSpace(event.ResourceID); resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if ip := actorcontext.IPAddressFromContext(ctx); ip != "" {
		entry.IPAddress = &ip
	}
	if userAgent := actorcontext.UserAgentFromContext(ctx); userAgent != "" {
		entry.UserAgent = &userAgent
	}

	details := masking.MaskDetails(event.Details)
	if requestID := actorcontext.RequestIDFromContext(ctx); requestID != "" {
		if details == nil {
			details = map[string]any{}
		}
		details["request_id"] = requestID
	}
	if details != nil {
		entry.Details = datatypes.JSONMap(details)
	}

	if s.buffer == nil {
		payload, _ := json.Marshal(entry)
		s.log.Warn("audit buffer unavailable, logging event locally", zap.ByteString("event", payload))
		return
	}
	s.buffer.Append(entry)
}

func (s *Service) Query(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter, err := s.buildFilter(req)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(item *domain.AuditEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID,
			CreatedAt: item.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}

	events := make([]domain.AuditEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}

	return domain.ListResponse{PageInfo: *pageInfo, Events: events}, nil
}

func (s *Service) Stats(ctx context.Context, req domain.ListRequest) (domain.Stats, error) {
	filter, err := s.buildFilter(req)
	if err != nil {
		return domain.Stats{}, err
	}
	filter.Cursor = nil
	filter.Limit = 0
	return s.repo.Stats(ctx, s.db, filter)
}

func (s *Service) ExportReport(ctx context.Context, req domain.ListRequest, format domain.ExportFormat) ([]byte, error) {
	resp, err := s.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	switch format {
	case domain.FormatJSON, "":
		return json.MarshalIndent(resp.Events, "", "  ")
	case domain.FormatCSV:
		return renderCSV(resp.Events)
	default:
		return nil, domain.ErrInvalidFormat
	}
}

// Purge deletes events past their severity-dependent retention window.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	var total int64

	bands := []struct {
		severities []domain.Severity
		retention  time.Duration
	}{
		{[]domain.Severity{domain.SeverityLow, domain.SeverityMedium}, s.cfg.AuditRetentionDefault},
		{[]domain.Severity{domain.SeverityHigh}, s.cfg.AuditRetentionHigh},
		{[]domain.Severity{domain.SeverityCritical}, s.cfg.AuditRetentionCritical},
	}

	for _, band := range bands {
		if band.retention <= 0 {
			continue
		}
		deleted, err := s.repo.DeleteOlderThan(ctx, s.db, band.severities, now.Add(-band.retention))
		if err != nil {
			return total, err
		}
		total += deleted
	}

	if total > 0 {
		s.log.Info("audit retention purge complete", zap.Int64("deleted", total))
	}
	return total, nil
}

func (s *Service) Flush(ctx context.Context) error {
	if s.buffer == nil {
		return nil
	}
	return s.buffer.Flush(ctx)
}

func (s *Service) buildFilter(req domain.ListRequest) (domain.ListFilter, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return domain.ListFilter{}, domain.ErrInvalidTimeRange
	}

	var cursor *domain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListFilter{}, domain.ErrInvalidPageToken
		}
		if strings.TrimSpace(decoded.ID) == "" {
			return domain.ListFilter{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: decoded.ID, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	return domain.ListFilter{
		EventType:    req.EventType,
		Severity:     req.Severity,
		Outcome:      req.Outcome,
		ResourceType: req.ResourceType,
		ActorOrgID:   req.ActorOrgID,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
		Cursor:       cursor,
		Limit:        pageSize,
	}, nil
}

func (s *Service) resolveOrgID(ctx context.Context, orgID *snowflake.ID) *snowflake.ID {
	if orgID != nil && *orgID != 0 {
		return orgID
	}
	resolved, ok := actorcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil
	}
	return &resolved
}

func renderCSV(events []domain.AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "event_type", "severity", "actor_user_id", "actor_org_id", "resource_type", "resource_id", "operation", "outcome", "ip_address", "created_at"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, e := range events {
		record := []string{
			e.ID,
			e.EventType,
			string(e.Severity),
			idString(e.ActorUserID),
			idString(e.ActorOrgID),
			strString(e.ResourceType),
			strString(e.ResourceID),
			e.Operation,
			string(e.Outcome),
			strString(e.IPAddress),
			e.CreatedAt.Format(time.RFC3339Nano),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func idString(id *snowflake.ID) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(int64(*id), 10)
}

func strString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func newEventID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
