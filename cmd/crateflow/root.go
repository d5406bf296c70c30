package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crateflow/internal/audit"
	"github.com/smallbiznis/crateflow/internal/clock"
	"github.com/smallbiznis/crateflow/internal/config"
	"github.com/smallbiznis/crateflow/internal/delivery"
	"github.com/smallbiznis/crateflow/internal/invoice"
	"github.com/smallbiznis/crateflow/internal/lock"
	"github.com/smallbiznis/crateflow/internal/masterdata"
	"github.com/smallbiznis/crateflow/internal/observability"
	"github.com/smallbiznis/crateflow/internal/payment"
	"github.com/smallbiznis/crateflow/internal/pricing"
	"github.com/smallbiznis/crateflow/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "crateflow",
		Short:         "Billing and payment allocation for container deliveries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newGenerateAllCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}

// infrastructure is what every command needs before touching the database.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// billingModules are the domain services without the HTTP surface.
func billingModules() fx.Option {
	return fx.Options(
		lock.Module,
		masterdata.Module,
		audit.Module,
		pricing.Module,
		delivery.Module,
		invoice.Module,
		payment.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
