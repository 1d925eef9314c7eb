package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/sentra/internal/actorcontext"
	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/smallbiznis/sentra/internal/clock"
	"github.com/smallbiznis/sentra/internal/config"
	credentialdomain "github.com/smallbiznis/sentra/internal/credential/domain"
	"github.com/smallbiznis/sentra/internal/ratelimit"
	"github.com/smallbiznis/sentra/internal/scope"
	pkgdb "github.com/smallbiznis/sentra/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	secretPrefix      = "sk_live_"
	secretRandomBytes = 32
	defaultExpiry     = 365 * 24 * time.Hour
	touchTimeout      = 5 * time.Second
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Repo    credentialdomain.Repository
	Limiter *ratelimit.Limiter
	Audit   auditdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	repo    credentialdomain.Repository
	limiter *ratelimit.Limiter
	audit   auditdomain.Service
}

func New(p Params) credentialdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("credential.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		repo:    p.Repo,
		limiter: p.Limiter,
		audit:   p.Audit,
	}
}

func (s *Service) Issue(ctx context.Context, req credentialdomain.IssueRequest) (*credentialdomain.SecretResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	userID, _ := actorcontext.UserIDFromContext(ctx)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, credentialdomain.ErrInvalidName
	}
	scopes := scope.Normalize(req.Scopes)
	if err := scope.Validate(scopes); err != nil {
		return nil, credentialdomain.ErrInvalidScope
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	plain, hash, err := generateSecret(id)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(defaultExpiry)
	cred := &credentialdomain.Credential{
		ID:                   id,
		OwnerOrgID:           orgID,
		OwnerUserID:          userID,
		Name:                 name,
		Scopes:               pq.StringArray(scopes),
		SecretHash:           hash,
		QuotaPerMinute:       req.Quota.PerMinute,
		QuotaPerHour:         req.Quota.PerHour,
		QuotaPerDay:          req.Quota.PerDay,
		QuotaBurst:           req.Quota.Burst,
		IsActive:             true,
		RotationIntervalDays: req.RotationIntervalDays,
		CreatedAt:            now,
		UpdatedAt:            now,
		ExpiresAt:            &expiresAt,
	}

	if err := s.repo.Insert(ctx, s.db, cred); err != nil {
		if !pkgdb.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Secret hash collision: mint a fresh secret and try once more.
		if plain, hash, err = generateSecret(id); err != nil {
			return nil, err
		}
		cred.SecretHash = hash
		if err := s.repo.Insert(ctx, s.db, cred); err != nil {
			return nil, err
		}
	}

	s.audit.Record(ctx, auditdomain.Event{
		EventType:    "credential.issued",
		Severity:     auditdomain.SeverityLow,
		ResourceType: "credential",
		ResourceID:   cred.ID.String(),
		Operation:    "issue",
		Outcome:      auditdomain.OutcomeSuccess,
		Details:      map[string]any{"name": name, "scopes": scopes},
	})

	return &credentialdomain.SecretResponse{Credential: s.toResponse(cred), Secret: plain}, nil
}

// Validate attributes a presented raw secret to a live credential and charges
// the credential-scoped quota. It fails closed: any store error reads as an
// invalid credential rather than an allow.
func (s *Service) Validate(ctx context.Context, rawSecret, endpoint string, meta credentialdomain.CallerMeta) credentialdomain.ValidationResult {
	raw := strings.TrimSpace(rawSecret)
	if raw == "" {
		return s.denied(ctx, nil, endpoint, meta, credentialdomain.ReasonInvalidCredential)
	}

	cred, err := s.repo.FindBySecretHash(ctx, s.db, credentialdomain.HashSecret(raw))
	if err != nil {
		s.log.Error("credential lookup failed", zap.Error(err))
		return s.denied(ctx, nil, endpoint, meta, credentialdomain.ReasonStoreUnavailable)
	}
	if cred == nil {
		return s.denied(ctx, nil, endpoint, meta, credentialdomain.ReasonInvalidCredential)
	}
	if !cred.IsActive {
		return s.denied(ctx, cred, endpoint, meta, credentialdomain.ReasonCredentialRevoked)
	}
	if cred.Expired(s.clock.Now()) {
		return s.denied(ctx, cred, endpoint, meta, credentialdomain.ReasonCredentialExpired)
	}

	key := ratelimit.Key{Type: ratelimit.KeyCredential, Identifier: cred.ID.String()}
	result, err := s.limiter.Check(ctx, key, s.quotaFor(cred))
	if err != nil {
		return s.denied(ctx, cred, endpoint, meta, credentialdomain.ReasonStoreUnavailable)
	}
	if !result.Allowed {
		reason := credentialdomain.ReasonRateLimited + ":" + string(result.LimitType)
		out := s.denied(ctx, cred, endpoint, meta, reason)
		out.RateLimit = &result
		return out
	}

	s.touchLastUsed(cred.ID)

	return credentialdomain.ValidationResult{Valid: true, Credential: cred, RateLimit: &result}
}

func (s *Service) Rotate(ctx context.Context, credentialID snowflake.ID) (*credentialdomain.SecretResponse, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var result *credentialdomain.SecretResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cred, err := s.repo.FindByID(ctx, tx, orgID, credentialID)
		if err != nil {
			return err
		}
		if cred == nil {
			return credentialdomain.ErrNotFound
		}
		if !cred.IsActive {
			return credentialdomain.ErrRevoked
		}

		now := s.clock.Now()
		plain, hash, err := generateSecret(cred.ID)
		if err != nil {
			return err
		}

		// The hash is swapped in place so the previous secret stops
		// resolving the moment the transaction commits.
		expiresAt := now.Add(defaultExpiry)
		cred.SecretHash = hash
		cred.ExpiresAt = &expiresAt
		cred.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, cred); err != nil {
			// A hash collision here aborts the transaction; retrying inside
			// it cannot succeed, so the caller rotates again.
			return err
		}

		result = &credentialdomain.SecretResponse{Credential: s.toResponse(cred), Secret: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditdomain.Event{
		EventType:    "credential.rotated",
		Severity:     auditdomain.SeverityMedium,
		ResourceType: "credential",
		ResourceID:   credentialID.String(),
		Operation:    "rotate",
		Outcome:      auditdomain.OutcomeSuccess,
	})

	return result, nil
}

func (s *Service) Revoke(ctx context.Context, credentialID snowflake.ID) error {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return err
	}

	cred, err := s.repo.FindByID(ctx, s.db, orgID, credentialID)
	if err != nil {
		return err
	}
	if cred == nil {
		return credentialdomain.ErrNotFound
	}

	now := s.clock.Now()
	cred.IsActive = false
	cred.UpdatedAt = now
	if cred.ExpiresAt == nil || cred.ExpiresAt.After(now) {
		cred.ExpiresAt = &now
	}
	if err := s.repo.Update(ctx, s.db, cred); err != nil {
		return err
	}

	s.audit.Record(ctx, auditdomain.Event{
		EventType:    "credential.revoked",
		Severity:     auditdomain.SeverityMedium,
		ResourceType: "credential",
		ResourceID:   credentialID.String(),
		Operation:    "revoke",
		Outcome:      auditdomain.OutcomeSuccess,
	})

	return nil
}

func (s *Service) List(ctx context.Context) ([]credentialdomain.Response, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]credentialdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, s.toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) denied(ctx context.Context, cred *credentialdomain.Credential, endpoint string, meta credentialdomain.CallerMeta, reason string) credentialdomain.ValidationResult {
	details := map[string]any{"reason": reason, "endpoint": endpoint}
	if meta.IPAddress != "" {
		details["ip_address"] = meta.IPAddress
	}

	event := auditdomain.Event{
		EventType:    "credential.validation_failed",
		Severity:     auditdomain.SeverityMedium,
		ResourceType: "credential",
		Operation:    "validate",
		Outcome:      auditdomain.OutcomeFailure,
		Details:      details,
	}
	if cred != nil {
		event.ResourceID = cred.ID.String()
		event.ActorOrgID = &cred.OwnerOrgID
		event.ActorUserID = &cred.OwnerUserID
	}
	s.audit.Record(ctx, event)

	return credentialdomain.ValidationResult{Valid: false, Credential: cred, Reason: reason}
}

// touchLastUsed is best-effort and detached from the request so that the
// validation result never waits on this write.
func (s *Service) touchLastUsed(id snowflake.ID) {
	now := s.clock.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := s.repo.TouchLastUsed(ctx, s.db, id, now); err != nil {
			s.log.Warn("last_used_at update failed", zap.Stringer("credential_id", id), zap.Error(err))
		}
	}()
}

func (s *Service) quotaFor(cred *credentialdomain.Credential) ratelimit.QuotaConfig {
	quota := ratelimit.QuotaConfig{
		PerMinute: cred.QuotaPerMinute,
		PerHour:   cred.QuotaPerHour,
		PerDay:    cred.QuotaPerDay,
		Burst:     cred.QuotaBurst,
	}
	if quota.PerMinute == 0 {
		quota.PerMinute = s.cfg.DefaultPerMinute
	}
	if quota.PerHour == 0 {
		quota.PerHour = s.cfg.DefaultPerHour
	}
	if quota.PerDay == 0 {
		quota.PerDay = s.cfg.DefaultPerDay
	}
	if quota.Burst == 0 {
		quota.Burst = s.cfg.DefaultBurst
	}
	return quota
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := actorcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, credentialdomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func (s *Service) toResponse(cred *credentialdomain.Credential) credentialdomain.Response {
	return credentialdomain.Response{
		ID:     cred.ID,
		Name:   cred.Name,
		Scopes: append([]string(nil), cred.Scopes...),
		Quota: ratelimit.QuotaConfig{
			PerMinute: cred.QuotaPerMinute,
			PerHour:   cred.QuotaPerHour,
			PerDay:    cred.QuotaPerDay,
			Burst:     cred.QuotaBurst,
		},
		IsActive:             cred.IsActive,
		RotationIntervalDays: cred.RotationIntervalDays,
		CreatedAt:            cred.CreatedAt,
		ExpiresAt:            cred.ExpiresAt,
		LastUsedAt:           cred.LastUsedAt,
	}
}

func generateSecret(id snowflake.ID) (string, string, error) {
	buf := make([]byte, secretRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}

	idPart := strings.ToLower(strconv.FormatInt(int64(id), 36))
	plain := fmt.Sprintf("%s%s_%s", secretPrefix, idPart, hex.EncodeToString(buf))
	return plain, credentialdomain.HashSecret(plain), nil
}
