package main

import (
	"fmt"

	"github.com/antrhizom/prompt-managerin/backend/internal/config"

	"github.com/spf13/cobra"
)

var catalogPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the active catalog (built-in values merged with CATALOG_FILE)",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := catalogPath
		if path == "" {
			rt, err := config.LoadRuntime()
			if err != nil {
				return err
			}
			path = rt.CatalogFile
		}
		catalog, err := config.NewCatalogManager(path)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		return printOutput(cmd.OutOrStdout(), catalog.Get())
	},
}

func init() {
	catalogCmd.Flags().StringVar(&catalogPath, "file", "", "catalog file (default: CATALOG_FILE)")
}
