package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"corpusd/internal/scanner"
	"corpusd/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize local documents with the server index",
	Long: `Scans the configured roots, computes the delta against the sync
cursor, and uploads changed files in bounded batches. Deleted files are
removed from the server index. With --watch, repeats on the configured
interval.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("force", false, "re-upload everything regardless of the cursor")
	syncCmd.Flags().Bool("watch", false, "keep syncing on the configured interval")
	syncCmd.Flags().String("type", "", "restrict this cycle to one content type")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	watch, _ := cmd.Flags().GetBool("watch")
	typeFilter, _ := cmd.Flags().GetString("type")

	client := syncer.NewClient(cfg.Sync.ServerURL, cfg.Sync.Account, cfg.Sync.Timeout)

	var bar *progressbar.ProgressBar
	s := syncer.New(client, syncer.Options{
		Scan: scanner.ScanConfig{
			Roots:   cfg.Sync.Roots,
			Include: cfg.Sync.Include,
			Exclude: cfg.Sync.Exclude,
			Types:   cfg.EnabledTypes(),
		},
		StateDir:   cfg.Sync.StateDir,
		MaxBytes:   cfg.Sync.MaxBatchBytes,
		MaxItems:   cfg.Sync.MaxBatchItems,
		TypeFilter: typeFilter,
		OnProgress: func(batch, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("uploading"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionClearOnFinish(),
				)
			}
			bar.Add(1)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOnce := func() error {
		bar = nil
		summary, err := s.Run(ctx, force)
		switch {
		case errors.Is(err, syncer.ErrSyncInFlight):
			fmt.Fprintln(os.Stderr, "sync already running, skipping")
			return nil
		case err != nil:
			// One summarized notice per cycle, not per file.
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("sync complete: %s\n", summary)
		return nil
	}

	if err := runOnce(); err != nil && !watch {
		return err
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	if !watch {
		return nil
	}

	ticker := time.NewTicker(cfg.Sync.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := runOnce(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}
}
