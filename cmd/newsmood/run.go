package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pevans/newsmood"
	"github.com/pevans/newsmood/config"
	"github.com/pevans/newsmood/discovery"
	"github.com/pevans/newsmood/results"
)

var (
	flagConfig      string
	flagProfile     string
	flagStart       string
	flagEnd         string
	flagSince       string
	flagMaxArticles int
	flagMaxPages    int
	flagMethods     []string
	flagFormat      string
	flagQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover, score and aggregate articles",
	Example: "  newsmood run --start 2024-01-01 --end 2024-06-30 --method lexicon --method external\n" +
		"  newsmood run --since 90d --format json",
	RunE: runPipeline,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagConfig, "config", "", "path to config file (default: ./newsmood.yaml or ~/.newsmood/config.yaml)")
	f.StringVar(&flagProfile, "profile", "", "path to site profile (overrides config)")
	f.StringVar(&flagStart, "start", "", "first day of the window, YYYY-MM-DD")
	f.StringVar(&flagEnd, "end", "", "last day of the window, YYYY-MM-DD (default: today)")
	f.StringVar(&flagSince, "since", "", "window length ending at --end when --start is not given (e.g., 30d, 12w)")
	f.IntVar(&flagMaxArticles, "max-articles", 0, "maximum number of articles (overrides config)")
	f.IntVar(&flagMaxPages, "max-pages", 0, "maximum number of listing pages (overrides config)")
	f.StringSliceVar(&flagMethods, "method", nil, "scoring method: keyword, lexicon, external, sentence (repeatable)")
	f.StringVar(&flagFormat, "format", "table", "summary format: table or json")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "only print the summary")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if flagFormat != "table" && flagFormat != "json" {
		return fmt.Errorf("invalid --format %q (valid: table, json)", flagFormat)
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagProfile != "" {
		cfg.Profile = flagProfile
	}
	if flagMaxArticles > 0 {
		cfg.Crawl.MaxArticles = flagMaxArticles
	}
	if flagMaxPages > 0 {
		cfg.Crawl.MaxPages = flagMaxPages
	}
	if len(flagMethods) > 0 {
		cfg.Scoring.Methods = flagMethods
	}
	methods, err := cfg.Methods()
	if err != nil {
		return err
	}

	start, end, err := parseWindow(flagStart, flagEnd, flagSince, time.Now())
	if err != nil {
		return err
	}

	var logOut io.Writer = os.Stderr
	if flagQuiet {
		logOut = io.Discard
	}
	logger := log.New(logOut, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, cleanup, err := newsmood.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	run, err := runner.Start(ctx, newsmood.RunRequest{
		Start:       start,
		End:         end,
		MaxArticles: cfg.Crawl.MaxArticles,
		MaxPages:    cfg.Crawl.MaxPages,
		Methods:     methods,
	})
	if err != nil {
		return err
	}

	for ev := range run.Events() {
		if !flagQuiet {
			printEvent(ev)
		}
	}
	<-run.Done()
	sum := run.Summary()

	records, err := runner.Store().ListResults(results.ResultFilter{RunID: &run.ID})
	if err != nil {
		return err
	}

	if flagFormat == "json" {
		printSummaryJSON(sum, records)
	} else {
		printSummaryTable(sum, records)
	}

	if sum.State == discovery.StateError && sum.Scored == 0 {
		return fmt.Errorf("run failed: %w", sum.Err)
	}
	return nil
}
