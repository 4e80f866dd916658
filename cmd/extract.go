package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/noveld/internal/config"
	"github.com/brogergvhs/noveld/internal/extract"
	"github.com/brogergvhs/noveld/internal/textnorm"
	"github.com/brogergvhs/noveld/internal/ui"
)

var (
	extractHTTP    httpFlags
	flagExtractRaw bool
)

func init() {
	extractCmd := &cobra.Command{
		Use:   "extract <chapter_url>",
		Short: "Fetch one chapter page and print its extracted title and text",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}

	extractCmd.Flags().BoolVar(&flagExtractRaw, "raw", false, "print the body without empty line cleanup")
	addHTTPFlags(extractCmd, &extractHTTP)

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	opts := config.Options{IgnoreConfig: flagIgnoreConfig, Debug: flagDebug}
	extractHTTP.apply(&opts)

	cfg, _, err := config.LoadMerged(opts)
	if err != nil {
		return err
	}
	logSvc := ui.NewLogger(cfg.Debug)

	fetch, err := newFetcher(cfg, logSvc, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	page, err := fetch.Fetch(ctx, args[0])
	if err != nil {
		return err
	}

	res := extract.New().Extract(page.HTML, "")
	logSvc.With(ui.Fields{"url": page.FinalURL, "strategy": res.Strategy}).Debugf("extracted %d bytes", len(res.Body))

	body := textnorm.Apply(res.Body, !flagExtractRaw && cfg.Clean())

	fmt.Println(res.Title)
	fmt.Println()
	fmt.Println(body)

	if !res.Found {
		return fmt.Errorf("no chapter content found at %s", page.FinalURL)
	}
	return nil
}
