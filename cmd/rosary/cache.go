package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"rosary-audio/internal/config"
	"rosary-audio/internal/store"
)

func cacheCmd() *cobra.Command {
	var showFailed bool

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Show the remote audio download cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			db, err := store.New(cfg.DatabasePath())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			return printCache(store.NewAudioCacheStore(db), showFailed)
		},
	}

	cmd.Flags().BoolVar(&showFailed, "failed", false, "List failed downloads")
	return cmd
}

func printCache(entries *store.AudioCacheStore, showFailed bool) error {
	count, size, err := entries.TotalSize()
	if err != nil {
		return fmt.Errorf("read cache size: %w", err)
	}
	fmt.Printf("%s recordings cached, %s\n", humanize.Comma(int64(count)), humanize.Bytes(uint64(size)))

	if !showFailed {
		return nil
	}

	failed, err := entries.ListByStatus(store.CacheStatusFailed)
	if err != nil {
		return fmt.Errorf("list failed downloads: %w", err)
	}
	if len(failed) == 0 {
		fmt.Println("no failed downloads")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Voice", "Path", "Error", "Updated"})
	for _, e := range failed {
		t.AppendRow(table.Row{e.Voice, e.Path, e.ErrorText, humanize.Time(e.UpdatedAt)})
	}
	t.Render()
	return nil
}
