package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/sentra/internal/audit"
	"github.com/smallbiznis/sentra/internal/clock"
	"github.com/smallbiznis/sentra/internal/config"
	"github.com/smallbiznis/sentra/internal/credential"
	"github.com/smallbiznis/sentra/internal/inputguard"
	"github.com/smallbiznis/sentra/internal/isolation"
	"github.com/smallbiznis/sentra/internal/migration"
	"github.com/smallbiznis/sentra/internal/observability"
	"github.com/smallbiznis/sentra/internal/orchestrator"
	"github.com/smallbiznis/sentra/internal/ratelimit"
	"github.com/smallbiznis/sentra/internal/scheduler"
	"github.com/smallbiznis/sentra/internal/server"
	"github.com/smallbiznis/sentra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		audit.Module,
		ratelimit.Module,
		credential.Module,
		inputguard.Module,
		isolation.Module,
		orchestrator.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
