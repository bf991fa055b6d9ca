package main

import (
	"fmt"
	"os"

	"github.com/antrhizom/prompt-managerin/backend/internal/config"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/livequery"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/mirror"
	promptsvc "github.com/antrhizom/prompt-managerin/backend/internal/service/prompt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a json or yaml export; existing IDs are skipped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		doc, err := promptsvc.ReadExport(raw)
		if err != nil {
			return err
		}

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
		// 配置了 Redis 时通过变更通道通知运行中的服务实例重载镜像。
		hub := livequery.NewHub(nil)
		if resources.Redis != nil {
			hub.AttachRedis(resources.Redis, resources.Config.Redis.Channel)
		}
		m := mirror.New(prompts, nil, nil)
		svc := promptsvc.NewService(prompts, hub, m, catalog, nil)
		result, err := svc.Import(ctx, doc)
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), result)
	},
}
