package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	credentialdomain "github.com/smallbiznis/sentra/internal/credential/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() credentialdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cred *credentialdomain.Credential) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credentials (id, owner_org_id, owner_user_id, name, scopes, secret_hash, quota_per_minute, quota_per_hour, quota_per_day, quota_burst, is_active, rotation_interval_days, created_at, updated_at, expires_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID,
		cred.OwnerOrgID,
		cred.OwnerUserID,
		cred.Name,
		cred.Scopes,
		cred.SecretHash,
		cred.QuotaPerMinute,
		cred.QuotaPerHour,
		cred.QuotaPerDay,
		cred.QuotaBurst,
		cred.IsActive,
		cred.RotationIntervalDays,
		cred.CreatedAt,
		cred.UpdatedAt,
		cred.ExpiresAt,
		cred.LastUsedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, cred *credentialdomain.Credential) error {
	return db.WithContext(ctx).Exec(
		`UPDATE credentials
		 SET name = ?, scopes = ?, secret_hash = ?, quota_per_minute = ?, quota_per_hour = ?, quota_per_day = ?, quota_burst = ?, is_active = ?, rotation_interval_days = ?, updated_at = ?, expires_at = ?
		 WHERE id = ? AND owner_org_id = ?`,
		cred.Name,
		cred.Scopes,
		cred.SecretHash,
		cred.QuotaPerMinute,
		cred.QuotaPerHour,
		cred.QuotaPerDay,
		cred.QuotaBurst,
		cred.IsActive,
		cred.RotationIntervalDays,
		cred.UpdatedAt,
		cred.ExpiresAt,
		cred.ID,
		cred.OwnerOrgID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*credentialdomain.Credential, error) {
	var cred credentialdomain.Credential
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM credentials WHERE id = ? AND owner_org_id = ?`,
		id,
		orgID,
	).Scan(&cred).Error
	if err != nil {
		return nil, err
	}
	if cred.ID == 0 {
		return nil, nil
	}
	return &cred, nil
}

func (r *repo) FindBySecretHash(ctx context.Context, db *gorm.DB, hash string) (*credentialdomain.Credential, error) {
	var cred credentialdomain.Credential
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM credentials WHERE secret_hash = ?`,
		hash,
	).Scan(&cred).Error
	if err != nil {
		return nil, err
	}
	if cred.ID == 0 {
		return nil, nil
	}
	return &cred, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]credentialdomain.Credential, error) {
	var creds []credentialdomain.Credential
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM credentials WHERE owner_org_id = ? ORDER BY created_at DESC`,
		orgID,
	).Scan(&creds).Error
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE credentials SET last_used_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}
