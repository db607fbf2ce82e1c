package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"corpusd/internal/api"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the server's semantic index",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringP("type", "t", "", "restrict to one content type")
	searchCmd.Flags().IntP("count", "n", 10, "number of results")
	searchCmd.Flags().BoolP("rerank", "r", false, "rerank results with the cross-encoder")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	typeFilter, _ := cmd.Flags().GetString("type")
	count, _ := cmd.Flags().GetInt("count")
	rerank, _ := cmd.Flags().GetBool("rerank")

	q := url.Values{}
	q.Set("q", args[0])
	q.Set("client", cfg.Sync.Account)
	q.Set("n", strconv.Itoa(count))
	q.Set("r", strconv.FormatBool(rerank))
	if typeFilter != "" {
		q.Set("t", typeFilter)
	}

	resp, err := http.Get(cfg.Sync.ServerURL + "/search?" + q.Encode())
	if err != nil {
		return fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var results []api.SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("--- Result %d (score: %.4f", i+1, r.Score)
		if r.CrossScore != nil {
			fmt.Printf(", rerank: %.4f", *r.CrossScore)
		}
		fmt.Printf(") ---\n")
		fmt.Printf("File: %s (%s)\n", r.File, r.Type)
		if r.Image != "" {
			fmt.Printf("Image: %s\n", r.Image)
		}
		fmt.Println(r.Entry)
		fmt.Println()
	}
	return nil
}
