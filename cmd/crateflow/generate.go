package main

import (
	"encoding/json"

	"github.com/smallbiznis/crateflow/internal/auditcontext"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newGenerateAllCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "generate-all",
		Short: "Generate draft invoices for every active client with unbilled deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc invoicedomain.Service
				log *zap.Logger
			)
			app := fx.New(
				infrastructure(),
				billingModules(),
				fx.NopLogger,
				fx.Populate(&svc, &log),
			)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = app.Stop(ctx) }()

			ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeSystem, actor)
			resp, err := svc.GenerateAll(ctx)
			if err != nil {
				return err
			}

			log.Info("generate-all finished",
				zap.Int("generated", len(resp.Generated)),
				zap.Int("skipped", len(resp.Skipped)),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor id recorded in the audit trail")
	return cmd
}
