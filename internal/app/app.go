// Package app assembles the fx modules shared by every entrypoint.
package app

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/antaeus/internal/billing"
	"github.com/smallbiznis/antaeus/internal/clock"
	"github.com/smallbiznis/antaeus/internal/config"
	"github.com/smallbiznis/antaeus/internal/customer"
	"github.com/smallbiznis/antaeus/internal/events"
	"github.com/smallbiznis/antaeus/internal/invoice"
	"github.com/smallbiznis/antaeus/internal/migration"
	"github.com/smallbiznis/antaeus/internal/observability"
	"github.com/smallbiznis/antaeus/internal/payment"
	"github.com/smallbiznis/antaeus/internal/scheduler"
	"github.com/smallbiznis/antaeus/pkg/db"
	"go.uber.org/fx"
)

// Core wires configuration, persistence and the billing stack. It carries no
// HTTP surface.
var Core = fx.Options(
	// Core Infrastructure
	config.Module,
	observability.Module,
	fx.Provide(RegisterSnowflake),
	db.Module,
	migration.Module,
	clock.Module,

	// Functional Domains
	customer.Module,
	invoice.Module,
	payment.Module,
	events.Module,
	scheduler.Module,
	billing.Module,
)

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
