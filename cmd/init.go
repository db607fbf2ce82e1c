package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"corpusd/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a corpusd configuration interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgFile); err == nil {
			return fmt.Errorf("%s already exists; remove it first to reconfigure", cfgFile)
		}

		cfg, err := config.RunWizard()
		if err != nil {
			return err
		}
		if err := cfg.Save(cfgFile); err != nil {
			return err
		}
		fmt.Printf("\nWrote %s. Start the server with `corpusd serve`, then run `corpusd sync`.\n", cfgFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
