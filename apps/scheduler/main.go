package main

import (
	"github.com/smallbiznis/antaeus/internal/app"
	"github.com/smallbiznis/antaeus/internal/billing"
	"go.uber.org/fx"
)

// The scheduler worker has no HTTP surface. It registers the recurring
// billing trigger from billing config and runs until signalled.
func main() {
	fx.New(
		app.Core,
		billing.ScheduleOnStart(""),
	).Run()
}
