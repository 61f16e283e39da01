package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sahithikokkula/explorer/pkg/anonapi"
	"github.com/sahithikokkula/explorer/pkg/config"
	"github.com/sahithikokkula/explorer/pkg/logging"
)

var (
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	logCloser  io.Closer
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to explorer.yaml")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		logger, logCloser, err = logging.New(cfg.Logging)
		return err
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	}
}

func newClient() *anonapi.Client {
	return anonapi.NewClient(
		anonapi.NewHTTPTransport(cfg.API.URL, anonapi.WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.Burst)),
		anonapi.Config{
			Credential:           cfg.API.Key,
			PollInterval:         cfg.API.PollInterval,
			MaxConcurrentQueries: cfg.API.MaxConcurrentQueries,
			CancelOnAbort:        cfg.API.CancelOnAbort,
			Logger:               logger,
		},
	)
}
