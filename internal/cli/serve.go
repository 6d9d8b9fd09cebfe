package cli

import (
	"strings"

	"github.com/smallbiznis/antaeus/internal/app"
	"github.com/smallbiznis/antaeus/internal/billing"
	"github.com/smallbiznis/antaeus/internal/scheduler"
	"github.com/smallbiznis/antaeus/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newServeCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the recurring billing trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule = strings.TrimSpace(schedule)
			if schedule != "" {
				if err := scheduler.ValidateCron(schedule); err != nil {
					return err
				}
			}

			fx.New(
				app.Core,
				server.Module,
				billing.ScheduleOnStart(schedule),
			).Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression overriding billing.schedule.cron")
	return cmd
}
