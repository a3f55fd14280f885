package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "show the resolved session configuration for a table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireTableDir(); err != nil {
			return err
		}
		cfg, err := resolveSession()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cfg)
		}
		fmt.Printf("max-retries:              %d\n", cfg.MaxRetries)
		fmt.Printf("checkpoint-interval:      %d\n", cfg.CheckpointInterval)
		fmt.Printf("log-compaction-interval:  %d\n", cfg.LogCompactionInterval)
		fmt.Printf("lock-timeout:             %s\n", cfg.LockTimeout)
		fmt.Printf("iceberg-compat-version:   %s\n", cfg.IcebergCompatVersion)
		fmt.Printf("engine-info:              %s\n", cfg.EngineInfo)
		return nil
	},
}
