// cmd/codelens/status.go
package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and store status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.flat.CurrentStats()
	fmt.Println("Vector index:")
	fmt.Printf("  Vectors:    %d\n", stats.TotalVectors)
	fmt.Printf("  Dimension:  %d\n", stats.Dimension)
	fmt.Printf("  Generation: %d\n", stats.Generation)
	if stats.TotalVectors == 0 {
		fmt.Println("  (empty; run 'codelens analyze --embeddings <repo>' to build it)")
	}

	if a.store == nil {
		return nil
	}

	dbStats, err := a.store.DatabaseStats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load store stats: %w", err)
	}

	fmt.Println("Result store:")
	fmt.Printf("  Analysis results: %d (%d in last 24h)\n",
		dbStats.TotalResults, dbStats.RecentResults)
	fmt.Printf("  Alerts:           %d\n", dbStats.TotalAlerts)

	if len(dbStats.Languages) > 0 {
		languages := make([]string, 0, len(dbStats.Languages))
		for language := range dbStats.Languages {
			languages = append(languages, language)
		}
		sort.Strings(languages)
		fmt.Println("  Languages:")
		for _, language := range languages {
			fmt.Printf("    %-8s %d\n", language, dbStats.Languages[language])
		}
	}
	return nil
}
