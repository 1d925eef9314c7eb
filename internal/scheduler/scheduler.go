package scheduler

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/smallbiznis/sentra/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const purgeTimeout = 5 * time.Minute

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Audit  auditdomain.Service
}

// Scheduler owns the periodic maintenance jobs. Retention is enforced here
// by a purge job, never on the audit write path.
type Scheduler struct {
	log   *zap.Logger
	cfg   config.Config
	audit auditdomain.Service
	cron  *cron.Cron
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:   p.Log.Named("scheduler"),
		cfg:   p.Config,
		audit: p.Audit,
		cron:  cron.New(cron.WithLocation(time.UTC)),
	}
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, s *Scheduler) error {
	if _, err := s.cron.AddFunc(s.cfg.AuditPurgeSchedule, s.runPurge); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.cron.Start()
			s.log.Info("scheduler started", zap.String("purge_schedule", s.cfg.AuditPurgeSchedule))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := s.cron.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})
	return nil
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	start := time.Now()
	deleted, err := s.audit.Purge(ctx)
	if err != nil {
		s.log.Error("audit purge failed", zap.Error(err))
		return
	}

	s.log.Info("audit purge completed",
		zap.Int64("deleted", deleted),
		zap.Duration("took", time.Since(start)),
	)
}
