package observability

import (
	"os"
	"strings"

	"github.com/smallbiznis/sentra/internal/config"
	"github.com/smallbiznis/sentra/internal/observability/logger"
	"github.com/smallbiznis/sentra/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
		metrics.New,
	),
)

func provideLoggerConfig(cfg config.Config) logger.Config {
	debug := isDevEnv(cfg.Environment)
	return logger.Config{
		ServiceName:         cfg.AppName,
		Environment:         cfg.Environment,
		Version:             cfg.AppVersion,
		Level:               getenv("LOG_LEVEL", "info"),
		Format:              getenv("LOG_FORMAT", "json"),
		IncludeCaller:       true,
		IncludeStackOnError: debug,
	}
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}
