package audit

import (
	"context"

	"github.com/smallbiznis/sentra/internal/audit/buffer"
	"github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/smallbiznis/sentra/internal/audit/repository"
	"github.com/smallbiznis/sentra/internal/audit/service"
	"github.com/smallbiznis/sentra/internal/config"
	obsmetrics "github.com/smallbiznis/sentra/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideBuffer),
	fx.Provide(service.New),
	fx.Invoke(startBuffer),
)

func provideBuffer(cfg config.Config, db *gorm.DB, repo domain.Repository, log *zap.Logger, metrics *obsmetrics.Metrics) *buffer.Buffer {
	flush := func(ctx context.Context, events []*domain.AuditEvent) error {
		return repo.InsertBatch(ctx, db, events)
	}
	return buffer.New(buffer.Config{
		FlushSize:     cfg.AuditFlushSize,
		FlushInterval: cfg.AuditFlushInterval,
	}, flush, log, metrics)
}

func startBuffer(lc fx.Lifecycle, b *buffer.Buffer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			b.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return b.Close(ctx)
		},
	})
}
