package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"corpusd/internal/content"
	"corpusd/internal/syncer"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <content-type>",
	Short: "Delete all index entries of one content type",
	Long: `Removes every index entry of the given content type for this
account. Run before a forced full sync to avoid mixing entries produced by
different extraction versions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !content.Valid(args[0]) {
			return fmt.Errorf("unknown content type %q", args[0])
		}

		client := syncer.NewClient(cfg.Sync.ServerURL, cfg.Sync.Account, cfg.Sync.Timeout)
		if err := client.Purge(context.Background(), content.Type(args[0])); err != nil {
			return err
		}
		fmt.Printf("purged %s entries for account %s\n", args[0], cfg.Sync.Account)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
