package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "inspect a table's commit log",
}

var logListCmd = &cobra.Command{
	Use:   "list",
	Short: "list committed versions and their file sizes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireTableDir(); err != nil {
			return err
		}
		cfg, err := resolveSession()
		if err != nil {
			return err
		}
		eng := newEngine(cfg)

		files, err := eng.ListFrom(cmd.Context(), tableDir, "")
		if err != nil {
			return fmt.Errorf("listing %s: %w", tableDir, err)
		}

		if jsonOutput {
			return printJSON(files)
		}
		for _, f := range files {
			fmt.Printf("%s\t%d bytes\tmodified %d\n", f.Path, f.Size, f.ModificationTime)
		}
		return nil
	},
}

var logWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch --table for new commit files and print them as they land",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireTableDir(); err != nil {
			return err
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer func() { _ = watcher.Close() }()

		if err := watcher.Add(tableDir); err != nil {
			return fmt.Errorf("watching %s: %w", tableDir, err)
		}

		fmt.Fprintf(os.Stderr, "watching %s for new commits (press Ctrl+C to exit)\n", tableDir)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		var debounceTimer *time.Timer
		const debounceDelay = 200 * time.Millisecond

		for {
			select {
			case <-sigChan:
				fmt.Fprintln(os.Stderr, "stopped watching.")
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				name := event.Name
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					fmt.Printf("%s\n", filepath.Base(name))
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
			}
		}
	},
}

func init() {
	logCmd.AddCommand(logListCmd)
	logCmd.AddCommand(logWatchCmd)
}
