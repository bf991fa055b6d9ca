package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antrhizom/prompt-managerin/backend/internal/app"
	appLogger "github.com/antrhizom/prompt-managerin/backend/internal/infra/logger"
	"github.com/antrhizom/prompt-managerin/backend/internal/repository"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "promptctl",
	Short: "Maintenance commands for the Prompt Managerin record store",
	Long: `promptctl works directly against the configured record store.

Connection settings come from the same environment variables as the server
(STORE_DRIVER, STORE_DSN, SQLITE_PATH, ...). A --config file may provide them
as lower-case keys; variables already set in the environment take precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "yaml", "json":
		default:
			return fmt.Errorf("unsupported output format %q", outputFormat)
		}
		// CLI 只向 stderr 输出日志，不写日志文件。
		quiet, err := appLogger.Build(appLogger.Options{Level: logLevel, FilePath: "off"})
		if err != nil {
			return err
		}
		appLogger.Replace(quiet)
		if cfgFile == "" {
			return nil
		}
		return applyConfigFile(cfgFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (yaml, json or toml) with store settings",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "warn", "log level written to stderr (debug, info, warn, error)",
	)

	rootCmd.AddCommand(statsCmd, exportCmd, importCmd, catalogCmd)
}

// applyConfigFile 把配置文件中的键以大写形式写入环境变量，已存在的环境变量不覆盖。
func applyConfigFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// openStore 建立存储连接并确保表结构存在。
func openStore(ctx context.Context) (*app.Resources, *repository.PromptRepository, error) {
	logger := appLogger.Component("promptctl")
	resources, err := app.Bootstrap(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	prompts := repository.NewPromptRepository(resources.DB)
	if err := prompts.AutoMigrate(ctx); err != nil {
		_ = resources.Close()
		return nil, nil, fmt.Errorf("migrate prompts: %w", err)
	}
	return resources, prompts, nil
}

// printOutput 按 -o 指定的格式输出。
func printOutput(w io.Writer, value any) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	default:
		return errors.New("unsupported output format")
	}
}
