// cmd/codelens/alert.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphy/codelens/internal/pipeline"
)

var alertCmd = &cobra.Command{
	Use:   "alert [message]",
	Short: "Analyze an alert against the indexed code",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlert,
}

var alertHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent alerts",
	RunE:  runAlertHistory,
}

var (
	alertType     string
	alertSeverity string
	alertFile     string
	alertLine     int
	alertJSON     bool
	alertLimit    int
)

func init() {
	alertCmd.Flags().StringVar(&alertType, "type", "error", "Alert type")
	alertCmd.Flags().StringVar(&alertSeverity, "severity", "medium", "Alert severity")
	alertCmd.Flags().StringVar(&alertFile, "file", "", "File the alert refers to")
	alertCmd.Flags().IntVar(&alertLine, "line", 0, "Line the alert refers to")
	alertCmd.Flags().BoolVar(&alertJSON, "json", false, "Print result as JSON")
	alertHistoryCmd.Flags().IntVar(&alertLimit, "limit", 20, "Maximum alerts to show")
	alertCmd.AddCommand(alertHistoryCmd)
	rootCmd.AddCommand(alertCmd)
}

func runAlert(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.analyzer.AnalyzeAlert(context.Background(), pipeline.AlertRequest{
		AlertType:    alertType,
		AlertMessage: args[0],
		FilePath:     alertFile,
		LineNumber:   alertLine,
		Severity:     alertSeverity,
	})
	if err != nil {
		return fmt.Errorf("alert analysis failed: %w", err)
	}

	if alertJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Printf("Alert [%s/%s]: %s\n", result.AlertType, result.Severity, result.AlertMessage)
	if len(result.RelatedCode) == 0 {
		fmt.Println("No related code found (index may be empty).")
	} else {
		fmt.Println("Related code:")
		for _, rc := range result.RelatedCode {
			fmt.Printf("  %2d. %s (%s)  score %.4f\n", rc.Rank, rc.FilePath, rc.Language, rc.SimilarityScore)
		}
	}
	fmt.Println("Suggested fixes:")
	for _, fix := range result.SuggestedFixes {
		fmt.Printf("  - %s\n", fix)
	}
	return nil
}

func runAlertHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.store == nil {
		return fmt.Errorf("no result store configured")
	}

	alerts, err := a.store.AlertHistory(context.Background(), alertLimit)
	if err != nil {
		return fmt.Errorf("failed to load alert history: %w", err)
	}
	if len(alerts) == 0 {
		fmt.Println("No alerts recorded.")
		return nil
	}
	for _, alert := range alerts {
		fmt.Printf("%s  [%s/%s] %s\n",
			alert.CreatedAt.Format("2006-01-02 15:04:05"),
			alert.AlertType, alert.Severity, alert.AlertMessage)
	}
	return nil
}
