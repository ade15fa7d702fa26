package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/decoupled/internal/models"
)

var (
	searchLimit  int
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over the indexed articles",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results (max 50)")
	searchCmd.Flags().StringVarP(&searchFormat, "format", "f", "text", "output format: text, json, yaml")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	switch searchFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format %q (want text, json or yaml)", searchFormat)
	}

	ctx := cmd.Context()
	application, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	query := strings.Join(args, " ")
	results, err := application.SearchService.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	return writeSearchResponse(cmd.OutOrStdout(), searchFormat, models.SearchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
	})
}

// writeSearchResponse renders response in the requested format
func writeSearchResponse(w io.Writer, format string, response models.SearchResponse) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)

	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(response)

	default:
		_, err := io.WriteString(w, formatResultsText(response, terminalWidth(100)))
		return err
	}
}

// formatResultsText renders results as a numbered list wrapped to width
func formatResultsText(response models.SearchResponse, width int) string {
	if len(response.Results) == 0 {
		return mutedStyle.Render(fmt.Sprintf("No results for %q.", response.Query)) + "\n"
	}

	summaryStyle := lipgloss.NewStyle().Width(width - 4).PaddingLeft(4)

	var b strings.Builder
	for i, result := range response.Results {
		article := result.Article
		fmt.Fprintf(&b, "%s %s %s\n",
			accentStyle.Render(fmt.Sprintf("[%d]", i+1)),
			titleStyle.Render(article.Title),
			mutedStyle.Render(fmt.Sprintf("(%.3f)", result.Score)))

		meta := []string{article.Category, article.ReadTime}
		if len(article.Tags) > 0 {
			meta = append(meta, strings.Join(article.Tags, ", "))
		}
		fmt.Fprintf(&b, "    %s\n", mutedStyle.Render(strings.Join(meta, " · ")))

		if article.Slug != "" {
			fmt.Fprintf(&b, "    %s\n", article.Slug)
		}
		if article.Summary != "" {
			b.WriteString(summaryStyle.Render(article.Summary))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\n", mutedStyle.Render(fmt.Sprintf("%d result(s)", len(response.Results))))
	return b.String()
}
