package main

import (
	"fmt"
	"io"
	"os"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	promptsvc "github.com/antrhizom/prompt-managerin/backend/internal/service/prompt"

	"github.com/spf13/cobra"
)

var (
	exportFormat         string
	exportFile           string
	exportIncludeDeleted bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export prompts as json, yaml or plain text",
	Long: `Export writes every prompt of the record store, newest first.

json and yaml exports can be re-imported with "promptctl import".
Soft-deleted prompts are left out unless --include-deleted is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := promptsvc.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		resources, prompts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer resources.Close()

		entities, err := prompts.ListAll(ctx)
		if err != nil {
			return err
		}
		records := make([]promptdomain.Record, 0, len(entities))
		for i := range entities {
			if entities[i].Deleted && !exportIncludeDeleted {
				continue
			}
			records = append(records, entities[i].Record())
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportFile != "" {
			f, err := os.Create(exportFile)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportFile, err)
			}
			defer f.Close()
			w = f
		}
		if err := promptsvc.WriteExport(w, records, format, time.Now()); err != nil {
			return err
		}
		if exportFile != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d prompts to %s\n", len(records), exportFile)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "export format: json, yaml or text")
	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "write to file instead of stdout")
	exportCmd.Flags().BoolVar(&exportIncludeDeleted, "include-deleted", false, "include soft-deleted prompts")
}
