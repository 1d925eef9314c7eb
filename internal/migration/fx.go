package migration

import (
	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/smallbiznis/sentra/internal/config"
	credentialdomain "github.com/smallbiznis/sentra/internal/credential/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned migrations target postgres; the embedded dev
			// databases take their schema from the models directly.
			return conn.AutoMigrate(
				&credentialdomain.Credential{},
				&auditdomain.AuditEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
