package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/smallbiznis/antaeus/internal/app"
	billingdomain "github.com/smallbiznis/antaeus/internal/billing/domain"
	billingservice "github.com/smallbiznis/antaeus/internal/billing/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type billOutput struct {
	Report billingdomain.PassReport   `json:"report"`
	Counts billingdomain.ReportCounts `json:"counts"`
}

func newBillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bill",
		Short: "Run one billing pass and print its report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc *billingservice.Service
			fxApp := fx.New(
				app.Core,
				fx.NopLogger,
				fx.Populate(&svc),
			)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := fxApp.Start(ctx); err != nil {
				return err
			}
			defer func() {
				_ = fxApp.Stop(context.Background())
			}()

			return runBill(ctx, svc, cmd.OutOrStdout())
		},
	}
}

func runBill(ctx context.Context, svc billingdomain.Service, out io.Writer) error {
	execution, err := svc.Execute(ctx, billingdomain.Immediate{})
	if err != nil {
		return fmt.Errorf("billing pass: %w", err)
	}
	if execution.Report == nil {
		return errors.New("billing pass produced no report")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(billOutput{Report: *execution.Report, Counts: execution.Report.Counts()})
}
