package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pevans/newsmood"
	"github.com/pevans/newsmood/config"
)

var scoreCmd = &cobra.Command{
	Use:   "score <url>...",
	Short: "Score individual article pages",
	Long: "Fetch the given article pages with the site profile's selectors and score\n" +
		"them, without paging through the listing or applying a date window.",
	Example: "  newsmood score https://news.example.com/auto/elektro-suv-im-test --method lexicon",
	Args:    cobra.MinimumNArgs(1),
	RunE:    scoreArticles,
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&flagConfig, "config", "", "path to config file (default: ./newsmood.yaml or ~/.newsmood/config.yaml)")
	f.StringVar(&flagProfile, "profile", "", "path to site profile (overrides config)")
	f.StringSliceVar(&flagMethods, "method", nil, "scoring method: keyword, lexicon, external, sentence (repeatable)")
	f.StringVar(&flagFormat, "format", "table", "output format: table or json")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log output")
}

func scoreArticles(cmd *cobra.Command, args []string) error {
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
	if len(flagMethods) > 0 {
		cfg.Scoring.Methods = flagMethods
	}
	methods, err := cfg.Methods()
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

	scored, err := runner.ScoreURLs(ctx, args, methods)
	if err != nil {
		return err
	}
	if len(scored) == 0 {
		return fmt.Errorf("none of the %d pages could be scored", len(args))
	}

	if flagFormat == "json" {
		printJSON(scored)
	} else {
		printScoredTable(scored)
	}
	return nil
}
