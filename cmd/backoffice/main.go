package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/backoffice/internal/audit"
	"github.com/smallbiznis/backoffice/internal/auth"
	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/clock"
	"github.com/smallbiznis/backoffice/internal/config"
	"github.com/smallbiznis/backoffice/internal/feature"
	"github.com/smallbiznis/backoffice/internal/merchant"
	"github.com/smallbiznis/backoffice/internal/migration"
	"github.com/smallbiznis/backoffice/internal/observability"
	"github.com/smallbiznis/backoffice/internal/role"
	"github.com/smallbiznis/backoffice/internal/ratelimit"
	"github.com/smallbiznis/backoffice/internal/routeguard"
	"github.com/smallbiznis/backoffice/internal/scheduler"
	"github.com/smallbiznis/backoffice/internal/seed"
	"github.com/smallbiznis/backoffice/internal/server"
	"github.com/smallbiznis/backoffice/internal/subscription"
	"github.com/smallbiznis/backoffice/internal/user"
	"github.com/smallbiznis/backoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Functional Domains
		authorization.Module,
		audit.Module,
		feature.Module,
		role.Module,
		user.Module,
		auth.Module,
		subscription.Module,
		merchant.Module,
		routeguard.Module,
		ratelimit.Module,

		// Startup and background work
		seed.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
