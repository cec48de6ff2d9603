// cmd/codelens/languages.go
package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphy/codelens/internal/parser"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported languages",
	RunE:  runLanguages,
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func runLanguages(cmd *cobra.Command, args []string) error {
	registry := parser.NewRegistry(slog.Default())
	for _, language := range registry.Languages() {
		p, err := registry.Resolve(language)
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %s\n", language, strings.Join(p.DefaultFilePatterns(), ", "))
	}
	return nil
}
