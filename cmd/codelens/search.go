// cmd/codelens/search.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphy/codelens/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed code",
	Long: `Search indexed code three ways:
  semantic    rank files by vector similarity to the query text
  function    find files defining a matching function or method name
  complexity  find files whose average complexity falls in a range`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var (
	searchType     string
	searchTopK     int
	searchLanguage string
	searchMin      float64
	searchMax      float64
	searchJSON     bool
)

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "semantic", "Search type: semantic, function, or complexity")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 5, "Maximum results to return")
	searchCmd.Flags().StringVar(&searchLanguage, "language", "", "Only return results for this language")
	searchCmd.Flags().Float64Var(&searchMin, "min-complexity", 0, "Lower complexity bound (complexity search)")
	searchCmd.Flags().Float64Var(&searchMax, "max-complexity", 100, "Upper complexity bound (complexity search)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	var results []search.Result

	switch searchType {
	case "semantic":
		if len(args) == 0 {
			return fmt.Errorf("semantic search requires a query")
		}
		results, err = a.router.Semantic(ctx, args[0], searchTopK)
	case "function":
		if len(args) == 0 {
			return fmt.Errorf("function search requires a name fragment")
		}
		results, err = a.router.ByFunctionName(ctx, args[0], searchTopK)
	case "complexity":
		results, err = a.router.ByComplexity(ctx, searchMin, searchMax, searchTopK)
	default:
		return fmt.Errorf("invalid search type: %s", searchType)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchLanguage != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Language == searchLanguage {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if searchJSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%2d. %s (%s)", r.Rank, r.FilePath, r.Language)
		switch {
		case r.MatchedFunction != "":
			fmt.Printf("  matched %s", r.MatchedFunction)
		case r.ComplexityScore > 0:
			fmt.Printf("  complexity %.2f", r.ComplexityScore)
		default:
			fmt.Printf("  score %.4f", r.SimilarityScore)
		}
		fmt.Println()
	}
	return nil
}
