package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/renderforge/billing/internal/billing"
	"github.com/renderforge/billing/internal/clock"
	"github.com/renderforge/billing/internal/config"
	"github.com/renderforge/billing/internal/ledger"
	"github.com/renderforge/billing/internal/migration"
	"github.com/renderforge/billing/internal/notifier"
	"github.com/renderforge/billing/internal/observability"
	"github.com/renderforge/billing/internal/plan"
	"github.com/renderforge/billing/internal/ratelimit"
	"github.com/renderforge/billing/internal/revenue"
	"github.com/renderforge/billing/internal/server"
	"github.com/renderforge/billing/internal/webhook"
	"github.com/renderforge/billing/internal/webhookevent"
	"github.com/renderforge/billing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,

		plan.Module,
		webhookevent.Module,
		ledger.Module,
		billing.Module,
		revenue.Module,
		notifier.Module,
		webhook.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
