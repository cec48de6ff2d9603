// cmd/codelens/analyze.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/randalmurphy/codelens/internal/analysis"
	"github.com/randalmurphy/codelens/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file-or-repo-path]",
	Short: "Analyze a source file or repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var (
	analyzeLanguage   string
	analyzeEmbeddings bool
	analyzeNoMetrics  bool
	analyzeJSON       bool
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeLanguage, "language", "", "Restrict repository analysis to one language")
	analyzeCmd.Flags().BoolVar(&analyzeEmbeddings, "embeddings", false, "Embed results and rebuild the search index")
	analyzeCmd.Flags().BoolVar(&analyzeNoMetrics, "no-metrics", false, "Omit line and complexity metrics from output")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print results as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	target, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("path not found: %s", target)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := pipeline.Options{
		Language:          analyzeLanguage,
		IncludeMetrics:    !analyzeNoMetrics,
		IncludeEmbeddings: analyzeEmbeddings,
	}

	ctx := context.Background()
	var records []analysis.Record

	if info.IsDir() {
		records, err = a.analyzer.AnalyzeRepository(ctx, target, opts)
	} else {
		var record *analysis.Record
		record, err = a.analyzer.AnalyzeFile(ctx, target, opts)
		if record != nil {
			records = []analysis.Record{*record}
		}
	}
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if analyzeJSON {
		return json.NewEncoder(os.Stdout).Encode(records)
	}

	fmt.Printf("Analyzed %d file(s):\n", len(records))
	for _, r := range records {
		fmt.Printf("  %s (%s, %s)\n", r.FilePath, r.Language, r.Extraction)
		fmt.Printf("    functions: %d  classes: %d  imports: %d\n",
			len(r.Functions), len(r.Classes), len(r.Imports))
		if !analyzeNoMetrics {
			fmt.Printf("    lines: %d  avg complexity: %.2f\n",
				r.Metrics.TotalLines, r.Metrics.AverageComplexity)
		}
	}
	if analyzeEmbeddings {
		stats := a.flat.CurrentStats()
		fmt.Printf("Index rebuilt: %d vectors, generation %d\n",
			stats.TotalVectors, stats.Generation)
	}
	return nil
}
