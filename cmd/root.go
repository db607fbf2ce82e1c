package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "corpusd",
	Short: "Personal document corpus sync and semantic search",
	Long: `corpusd keeps a personal document corpus synchronized with a server
that maintains an embedding-based search index. The same binary runs the
server (ingestion, search, scheduled index maintenance) and the client
(incremental sync, search queries).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".corpusd.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
