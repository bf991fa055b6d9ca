package main

import (
	"fmt"
	"time"

	"github.com/antrhizom/prompt-managerin/backend/internal/config"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/dashboard"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/mirror"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the dashboard aggregation for the current store contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		resources, prompts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer resources.Close()

		catalog, err := config.NewCatalogManager(resources.Config.CatalogFile)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		m := mirror.New(prompts, nil, nil)
		if err := m.Refresh(ctx); err != nil {
			return err
		}
		snap := m.Snapshot()
		stats := dashboard.Compute(snap.Records, catalog.Get())
		stats.Version = snap.Version
		return printOutput(cmd.OutOrStdout(), dashboard.Snapshot{ComputedAt: time.Now(), Stats: stats})
	},
}
