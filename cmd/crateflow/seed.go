package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crateflow/internal/migration"
	"github.com/smallbiznis/crateflow/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSeedCmd() *cobra.Command {
	var clients []string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default container types and optional clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn *gorm.DB
				node *snowflake.Node
				log  *zap.Logger
			)
			app := fx.New(
				infrastructure(),
				migration.Module,
				fx.NopLogger,
				fx.Populate(&conn, &node, &log),
			)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(ctx) }()

			catalog := seed.DefaultCatalog()
			for _, name := range clients {
				catalog.Clients = append(catalog.Clients, seed.ClientSpec{Name: name})
			}
			result, err := seed.EnsureMasterData(ctx, conn, node, catalog)
			if err != nil {
				return err
			}
			log.Info("master data seeded",
				zap.Int("containers_created", result.ContainersCreated),
				zap.Int("clients_created", result.ClientsCreated),
			)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&clients, "client", nil, "client name to create, repeatable")
	return cmd
}
