package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pevans/newsmood"
	"github.com/pevans/newsmood/results"
)

// printEvent prints one pipeline event as it arrives
func printEvent(ev newsmood.Event) {
	switch ev.Kind {
	case newsmood.EventProgress:
		fmt.Printf("[%3d%%] %s\n", ev.Percent, ev.Text)
	case newsmood.EventStatus:
		fmt.Printf("==> %s\n", ev.Text)
	case newsmood.EventResult:
		fmt.Printf("    %s\n", ev.Text)
	}
}

// printSummaryTable prints per-article results and period aggregates
func printSummaryTable(sum *newsmood.Summary, records []results.Record) {
	fmt.Println()
	fmt.Printf("Run %s: %s (%s)\n", sum.RunID, sum.State, sum.Reason)
	fmt.Printf("Discovered %d articles, scored %d\n", sum.Discovered, sum.Scored)
	if sum.LogPath != "" {
		fmt.Printf("Log: %s\n", sum.LogPath)
	}
	fmt.Println()

	if len(records) == 0 {
		fmt.Println("No articles to display.")
		return
	}

	for _, rec := range records {
		date := "undated"
		if rec.PublishedAt != nil {
			date = rec.PublishedAt.Format("2006-01-02")
		}

		title := truncateTitle(rec.Title, 70)

		fmt.Printf("%-9s %-8s %+7.3f  %s  %s\n", rec.Method, rec.Label, rec.Score, date, title)
		if rec.Error != "" {
			fmt.Printf("%s! %s\n", strings.Repeat(" ", 10), rec.Error)
		}
	}

	fmt.Println()
	fmt.Printf("%-9s %-9s %5s  %-8s %s\n", "PERIOD", "METHOD", "COUNT", "DOMINANT", "DISTRIBUTION")
	for _, p := range sum.Periods {
		fmt.Printf("%-9s %-9s %5d  %-8s %s\n", p.Key, p.Method, p.Count, p.Dominant, p.Normalized)
	}
}

// printScoredTable prints the results of directly scored articles
func printScoredTable(scored []newsmood.Scored) {
	for i, s := range scored {
		if i > 0 {
			fmt.Println()
		}
		date := "undated"
		if s.Article.PublishedAt != nil {
			date = s.Article.PublishedAt.Format("2006-01-02")
		}
		fmt.Printf("%s  %s\n", date, truncateTitle(s.Article.Title, 70))
		fmt.Printf("  %s\n", s.Article.URL)

		for _, r := range s.Results {
			fmt.Printf("  %-9s %-8s %+7.3f  %s\n", r.Method, r.Label, r.Score, r.Distribution)
			if r.Error != "" {
				fmt.Printf("%s! %s\n", strings.Repeat(" ", 12), r.Error)
			}
		}
	}
}

// truncateTitle shortens title to at most n runes
func truncateTitle(title string, n int) string {
	runes := []rune(title)
	if len(runes) <= n {
		return title
	}
	return string(runes[:n-3]) + "..."
}

// printSummaryJSON prints the summary and results in JSON format
func printSummaryJSON(sum *newsmood.Summary, records []results.Record) {
	output := map[string]any{
		"summary": sum,
		"results": records,
	}
	if sum.Err != nil {
		output["error"] = sum.Err.Error()
	}
	printJSON(output)
}

// printJSON prints v as indented JSON
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))
}
