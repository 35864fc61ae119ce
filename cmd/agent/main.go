// Package main は文書処理エージェント CLI のエントリーポイントです。
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/paper-agent/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions は全サブコマンド共通のフラグと読み込んだ設定です。
type rootOptions struct {
	apiURL   string
	logLevel string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "paper-agent",
		Short: "Run document instructions against the paper processing backend",
		Long: `paper-agent uploads PDF, image or DOCX files together with a plain-language
instruction ("compress to 2mb", "merge", "keep pages 1-3"), follows the job
until it finishes and downloads the result.

Configuration is read from the environment and an optional .env.local file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if opts.apiURL != "" {
				cfg.APIBaseURL = strings.TrimRight(opts.apiURL, "/")
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", "", "backend base URL (overrides API_BASE_URL)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		newSubmitCmd(opts),
		newResumeCmd(opts),
		newNormalizeCmd(opts),
	)
	return root
}
