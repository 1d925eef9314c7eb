package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentra/internal/ratelimit"
)

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*SecretResponse, error)
	Validate(ctx context.Context, rawSecret, endpoint string, meta CallerMeta) ValidationResult
	Rotate(ctx context.Context, credentialID snowflake.ID) (*SecretResponse, error)
	Revoke(ctx context.Context, credentialID snowflake.ID) error
	List(ctx context.Context) ([]Response, error)
}

type IssueRequest struct {
	Name                 string               `json:"name"`
	Scopes               []string             `json:"scopes"`
	Quota                ratelimit.QuotaConfig `json:"quota"`
	RotationIntervalDays int                  `json:"rotation_interval_days"`
}

// CallerMeta carries network attribution for auditing a validation attempt.
type CallerMeta struct {
	Endpoint  string
	IPAddress string
	UserAgent string
}

type Response struct {
	ID                   snowflake.ID `json:"id"`
	Name                 string       `json:"name"`
	Scopes               []string     `json:"scopes"`
	Quota                ratelimit.QuotaConfig `json:"quota"`
	IsActive             bool         `json:"is_active"`
	RotationIntervalDays int          `json:"rotation_interval_days"`
	CreatedAt            time.Time    `json:"created_at"`
	ExpiresAt            *time.Time   `json:"expires_at"`
	LastUsedAt           *time.Time   `json:"last_used_at"`
}

// SecretResponse is the only place a raw secret ever appears. It is returned
// once on issue and rotate and never recoverable afterwards.
type SecretResponse struct {
	Credential Response `json:"credential"`
	Secret     string   `json:"secret"`
}

// ValidationResult reports whether a presented secret identifies a live
// credential. Reason carries a stable machine-readable string on failure.
type ValidationResult struct {
	Valid      bool
	Credential *Credential
	Reason     string
	RateLimit  *ratelimit.Result
}

// Stable reason strings surfaced to callers on validation failure.
const (
	ReasonInvalidCredential = "invalid_credential"
	ReasonCredentialRevoked = "credential_revoked"
	ReasonCredentialExpired = "credential_expired"
	ReasonRateLimited       = "rate_limited"
	ReasonStoreUnavailable  = "store_unavailable"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidScope        = errors.New("invalid_scope")
	ErrNotFound            = errors.New("not_found")
	ErrRevoked             = errors.New("credential_revoked")
)
