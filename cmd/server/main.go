package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/veranemoloko/model-fetcher/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Download models from Hugging Face and ModelScope and archive them",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newSizeCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*cfgpkg.Config, *slog.Logger, error) {
	cfg, err := cfgpkg.Load()
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			slog.Error("download directory is not usable", "error", err)
		}
		return nil, nil, err
	}
	logger := cfgpkg.SetupLogger(cfg)
	logger.Info("configuration loaded successfully")
	return cfg, logger, nil
}
