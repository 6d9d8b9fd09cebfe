package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/antaeus/internal/config"
	"github.com/smallbiznis/antaeus/internal/seed"
	"github.com/smallbiznis/antaeus/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, dbCfg db.Config, cfg config.Config, genID *snowflake.Node, log *zap.Logger) error {
		if err := Apply(conn, dbCfg.Type); err != nil {
			return err
		}
		if !cfg.SeedData {
			return nil
		}
		stats, err := seed.Run(conn, genID, seed.Options{
			Customers:           cfg.SeedCustomers,
			InvoicesPerCustomer: cfg.SeedInvoicesEach,
		})
		if err != nil {
			return err
		}
		log.Info("seed.completed",
			zap.Int("customers", stats.Customers),
			zap.Int("invoices", stats.Invoices),
			zap.Bool("skipped", stats.Skipped),
		)
		return nil
	}),
)

// Apply runs the migrations that match the database type.
func Apply(conn *gorm.DB, dbType string) error {
	if dbType != db.TypePostgres {
		return AutoMigrate(conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
