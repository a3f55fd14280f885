package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deltakernel/txncore/internal/planner"
	"github.com/deltakernel/txncore/internal/txn"
	"github.com/deltakernel/txncore/internal/types"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "create tables",
}

var (
	createSchemaJSON  string
	createManaged     bool
	createPartitionBy []string
	createProperties  []string
)

var tableCreateCmd = &cobra.Command{
	Use:   "create <identifier>",
	Short: "create a new table at --table, writing its initial commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTableDir(); err != nil {
			return err
		}
		identifier := args[0]

		cfg, err := resolveSession()
		if err != nil {
			return err
		}
		eng := newEngine(cfg)

		existing, err := eng.ListFrom(cmd.Context(), tableDir, "")
		if err != nil {
			return fmt.Errorf("checking for an existing table: %w", err)
		}
		if len(existing) > 0 {
			return fmt.Errorf("a commit log already exists at %s; `table create` only creates brand-new tables", tableDir)
		}

		if createSchemaJSON == "" {
			return fmt.Errorf("--schema-json is required")
		}
		var schema types.StructType
		if err := json.Unmarshal([]byte(createSchemaJSON), &schema); err != nil {
			return fmt.Errorf("parsing --schema-json: %w", err)
		}

		properties := map[string]string{}
		for _, kv := range createProperties {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("invalid --property %q, expected key=value", kv)
			}
			properties[parts[0]] = parts[1]
		}

		desc := planner.Descriptor{
			Identifier:        identifier,
			Location:          tableDir,
			Schema:            &schema,
			PartitionColumns:  createPartitionBy,
			Properties:        properties,
			Mode:              planner.ModeErrorIfExists,
			Op:                planner.OpCreate,
			Managed:           createManaged,
			DataPathEmpty:     true,
		}

		plan, err := planner.Plan(desc, nil, planner.Options{})
		if err != nil {
			return fmt.Errorf("planning table creation: %w", err)
		}
		if plan.NoOp {
			fmt.Println("no-op: table already satisfies the requested state")
			return nil
		}

		readSnapshot := types.Snapshot{Version: -1}
		tx := txn.New(eng, readSnapshot, txn.Config{
			LogDir:             tableDir,
			Operation:          plan.Operation,
			EngineInfo:         cfg.EngineInfo,
			MaxRetries:         cfg.MaxRetries,
			CheckpointInterval: cfg.CheckpointInterval,
			Logger:             logger,
		}, plan.GeneratedActions)
		tx.UpdateMetadata(plan.Metadata)
		tx.UpdateProtocol(plan.Protocol)

		result, err := tx.Commit(cmd.Context())
		if err != nil {
			return fmt.Errorf("committing table creation: %w", err)
		}

		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("created %s at version %d\n", identifier, result.CommittedVersion)
		return nil
	},
}

func init() {
	tableCreateCmd.Flags().StringVar(&createSchemaJSON, "schema-json", "", "JSON-encoded StructType describing the table's schema")
	tableCreateCmd.Flags().BoolVar(&createManaged, "managed", false, "treat the table as managed (requires an empty data path)")
	tableCreateCmd.Flags().StringSliceVar(&createPartitionBy, "partition-by", nil, "comma-separated partition column names")
	tableCreateCmd.Flags().StringArrayVar(&createProperties, "property", nil, "a key=value table property; may be repeated")
	tableCmd.AddCommand(tableCreateCmd)
}
