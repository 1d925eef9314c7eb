package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/sentra/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, events []*domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(events).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditEvent, error) {
	var events []*domain.AuditEvent
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.AuditEvent{}), filter)

	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) Stats(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (domain.Stats, error) {
	stats := domain.Stats{
		BySeverity: make(map[domain.Severity]int64),
		ByOutcome:  make(map[domain.Outcome]int64),
	}

	type row struct {
		Severity domain.Severity
		Outcome  domain.Outcome
		Count    int64
	}

	var rows []row
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.AuditEvent{}), filter)
	if err := stmt.Select("severity, outcome, count(*) as count").
		Group("severity, outcome").
		Scan(&rows).Error; err != nil {
		return domain.Stats{}, err
	}

	for _, r := range rows {
		stats.Total += r.Count
		stats.BySeverity[r.Severity] += r.Count
		stats.ByOutcome[r.Outcome] += r.Count
	}
	return stats, nil
}

func (r *repo) DeleteOlderThan(ctx context.Context, db *gorm.DB, severities []domain.Severity, before time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("severity IN ?", severities).
		Where("created_at < ?", before.UTC()).
		Delete(&domain.AuditEvent{})
	return result.RowsAffected, result.Error
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if eventType := strings.TrimSpace(filter.EventType); eventType != "" {
		stmt = stmt.Where("event_type = ?", eventType)
	}
	if filter.Severity != "" {
		stmt = stmt.Where("severity = ?", filter.Severity)
	}
	if filter.Outcome != "" {
		stmt = stmt.Where("outcome = ?", filter.Outcome)
	}
	if resourceType := strings.TrimSpace(filter.ResourceType); resourceType != "" {
		stmt = stmt.Where("resource_type = ?", resourceType)
	}
	if filter.ActorOrgID != 0 {
		stmt = stmt.Where("actor_org_id = ?", filter.ActorOrgID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	return stmt
}
