package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/brogergvhs/noveld/internal/chapters"
	"github.com/brogergvhs/noveld/internal/config"
	"github.com/brogergvhs/noveld/internal/extract"
	"github.com/brogergvhs/noveld/internal/fetcher"
	"github.com/brogergvhs/noveld/internal/progress"
	"github.com/brogergvhs/noveld/internal/scrape"
	"github.com/brogergvhs/noveld/internal/storage"
	"github.com/brogergvhs/noveld/internal/ui"
	"github.com/brogergvhs/noveld/internal/util"
	"github.com/brogergvhs/noveld/internal/volume"
)

var (
	// selection
	flagURL      string
	flagChapters string

	flagDryRun bool

	downloadScrape scrapeFlags
	downloadHTTP   httpFlags
)

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Scrape a book into text volumes. Uses the defaults from the selected config, overwritten by CLI flags",
		RunE:  runDownload,
	}

	downloadCmd.Flags().StringVar(&flagURL, "url", "", "table of contents page URL")
	downloadCmd.Flags().StringVar(&flagChapters, "chapters", "", "only these chapter numbers, merged into one file (e.g. 2-10,15)")
	downloadCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "list the chapters that would be scraped and exit")

	addScrapeFlags(downloadCmd, &downloadScrape)
	addHTTPFlags(downloadCmd, &downloadHTTP)

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, _ []string) error {
	opts := config.Options{
		IgnoreConfig: flagIgnoreConfig,
		Debug:        flagDebug,
		DefaultURL:   flagURL,
		Chapters:     flagChapters,
	}
	downloadScrape.apply(cmd, &opts)
	downloadHTTP.apply(&opts)

	cfg, usedPath, err := config.LoadMerged(opts)
	if err != nil {
		return err
	}

	logSvc := ui.NewLogger(cfg.Debug)
	if usedPath != "" {
		fmt.Printf("Config file: %s\n", usedPath)
	}

	fmt.Println("Full config:")
	cfg.Print()
	fmt.Println()

	if cfg.DefaultURL == "" {
		return fmt.Errorf("missing --url and no default_url in config")
	}

	var selection []int
	if strings.TrimSpace(cfg.DefaultChapters) != "" {
		if selection, err = chapters.ParseRange(cfg.DefaultChapters); err != nil {
			return err
		}
	}

	stats := &ui.Stats{}
	fetch, err := newFetcher(cfg, logSvc, stats.AddBytes)
	if err != nil {
		return err
	}

	if flagDryRun {
		return dryRun(cmd.Context(), fetch, cfg.DefaultURL, selection)
	}

	sink, downloads := newSink(cfg, logSvc)
	orch := scrape.New(scrape.Options{
		Fetcher:  fetch,
		Sink:     sink,
		Settings: settingsFrom(cfg),
		Log:      logSvc,
		Hooks: scrape.Hooks{
			OnChapter: func(ch extract.Chapter) {
				stats.TotalChapters.Add(1)
				if !ch.OK {
					stats.FailedChapters.Add(1)
				}
			},
			OnVolume: func(volume.Flushed) { stats.TotalVolumes.Add(1) },
		},
	})

	pm := ui.NewProgressManager()
	bar := pm.Register(barPrefix(cfg.DefaultURL), stats)

	// attach before starting so the first snapshot reaches the bar
	sub := orch.Channel().Attach()
	forwarded := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer close(forwarded)
		progress.Forward(ctx, sub, bar)
	}()

	// installed before the session starts so an early SIGINT still stops it
	// and removes partial files
	var interrupted atomic.Bool
	stopSignals := util.SetupInterruptHandler(func() {
		interrupted.Store(true)
		orch.Stop()
	}, cfg.Output, downloads)
	defer stopSignals()

	start := time.Now()
	var sess *scrape.Session
	if len(selection) > 0 {
		sess, err = orch.ScrapeChapters(cfg.DefaultURL, selection)
	} else {
		sess, err = orch.ScrapeBook(cfg.DefaultURL)
	}
	if err != nil {
		cancel()
		bar.Abort()
		pm.Close()
		return err
	}
	if interrupted.Load() {
		orch.Stop()
	}

	res := sess.Wait()
	<-forwarded
	pm.Close()

	fmt.Println()
	ui.Summary{
		Book:     res.Book,
		Final:    res.Final,
		Chapters: stats.TotalChapters.Load(),
		Failed:   stats.FailedChapters.Load(),
		Volumes:  savedNames(sink.Saved()),
		Bytes:    stats.TotalBytes.Load(),
		Elapsed:  time.Since(start),
	}.Print(os.Stdout)

	if res.Err != nil && !errors.Is(res.Err, scrape.ErrStopped) {
		return res.Err
	}
	return nil
}

// dryRun resolves the index and prints what a real run would fetch.
func dryRun(ctx context.Context, fetch fetcher.Fetcher, pageURL string, selection []int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	page, err := fetch.Fetch(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("fetch index: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return fmt.Errorf("parse index: %w", err)
	}

	index, err := chapters.Resolve(doc, page.FinalURL)
	if err != nil {
		return err
	}

	links := index.Links
	if len(selection) > 0 {
		if links, err = index.Select(selection); err != nil {
			return err
		}
	}

	fmt.Printf("Dry-run: %q, %d of %d chapters selected.\n\n", index.BookTitle, len(links), index.Len())
	for i, l := range links {
		fmt.Printf("%4d) %s\n      %s\n", i+1, l.Label(), l.Href)
	}
	return nil
}

func barPrefix(pageURL string) string {
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "book"
}

func savedNames(saved []storage.Saved) []string {
	out := make([]string, 0, len(saved))
	for _, s := range saved {
		if s.Via == storage.ViaDownload {
			out = append(out, s.Name+" (downloads)")
			continue
		}
		out = append(out, s.Name)
	}
	return out
}
