package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/deltakernel/txncore/internal/engine"
	"github.com/deltakernel/txncore/internal/icebergcompat"
	"github.com/deltakernel/txncore/internal/session"
)

var (
	tableDir              string
	jsonOutput            bool
	maxRetriesFlag        int
	checkpointIntervalFlag int
	logCompactionIntervalFlag int
	lockTimeoutFlag       time.Duration
	icebergCompatFlag     string
	engineInfoFlag        string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deltactl",
	Short: "deltactl - inspect and drive a Delta-style transaction log",
	Long:  `A thin command-line front end over the transaction core: create tables, inspect commit history, and show resolved session configuration.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelInfo
		if v, _ := cmd.Flags().GetBool("verbose"); v {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return setupOtel()
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if otelShutdown == nil {
			return nil
		}
		return otelShutdown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tableDir, "table", "", "path to the table's _delta_log directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&maxRetriesFlag, "max-retries", 0, "override the commit retry budget")
	rootCmd.PersistentFlags().IntVar(&checkpointIntervalFlag, "checkpoint-interval", 0, "override the checkpoint interval")
	rootCmd.PersistentFlags().IntVar(&logCompactionIntervalFlag, "log-compaction-interval", 0, "override the log-compaction interval")
	rootCmd.PersistentFlags().DurationVar(&lockTimeoutFlag, "lock-timeout", 0, "override the advisory-lock acquisition timeout")
	rootCmd.PersistentFlags().StringVar(&icebergCompatFlag, "iceberg-compat-version", "", "target Iceberg-compatibility version (V2 or V3)")
	rootCmd.PersistentFlags().StringVar(&engineInfoFlag, "engine-info", "", "engine-info string recorded in commitInfo actions")
	rootCmd.PersistentFlags().BoolVar(&otelStdoutFlag, "otel-stdout", false, "print resolver trace spans and metrics to stderr via the OTel stdout exporters")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(tableCmd)
}

// requireTableDir fails fast with a consistent message rather than letting
// every subcommand re-check the same thing.
func requireTableDir() error {
	if tableDir == "" {
		return fmt.Errorf("--table is required")
	}
	return nil
}

func resolveSession() (session.Config, error) {
	overrides := session.Overrides{
		MaxRetries:            maxRetriesFlag,
		CheckpointInterval:    checkpointIntervalFlag,
		LogCompactionInterval: logCompactionIntervalFlag,
		LockTimeout:           lockTimeoutFlag,
		EngineInfo:            engineInfoFlag,
	}
	if icebergCompatFlag != "" {
		v := icebergcompat.Version(icebergCompatFlag)
		overrides.IcebergCompatVersion = &v
	}
	return session.Resolve(tableDir, overrides)
}

func newEngine(cfg session.Config) engine.Engine {
	return engine.NewLocalEngine(cfg.LockTimeout)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
