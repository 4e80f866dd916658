package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/noveld/internal/config"
	"github.com/brogergvhs/noveld/internal/extract"
	"github.com/brogergvhs/noveld/internal/scrape"
	"github.com/brogergvhs/noveld/internal/server"
	"github.com/brogergvhs/noveld/internal/ui"
	"github.com/brogergvhs/noveld/internal/volume"
)

var (
	flagListen string

	serveScrape scrapeFlags
	serveHTTP   httpFlags
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API: start sessions, stream progress, pause and stop",
		RunE:  runServe,
	}

	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (default from config, 127.0.0.1:8765)")
	addScrapeFlags(serveCmd, &serveScrape)
	addHTTPFlags(serveCmd, &serveHTTP)

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	opts := config.Options{
		IgnoreConfig: flagIgnoreConfig,
		Debug:        flagDebug,
		Listen:       flagListen,
	}
	serveScrape.apply(cmd, &opts)
	serveHTTP.apply(&opts)

	cfg, usedPath, err := config.LoadMerged(opts)
	if err != nil {
		return err
	}

	logSvc := ui.NewLogger(cfg.Debug)
	logSvc.With(ui.Fields{"config": usedPath}).Debugf("config loaded")

	fetch, err := newFetcher(cfg, logSvc, nil)
	if err != nil {
		return err
	}
	sink, _ := newSink(cfg, logSvc)

	orch := scrape.New(scrape.Options{
		Fetcher:  fetch,
		Sink:     sink,
		Settings: settingsFrom(cfg),
		Log:      logSvc,
		Hooks: scrape.Hooks{
			OnChapter: func(ch extract.Chapter) {
				if !ch.OK {
					logSvc.With(ui.Fields{"chapter": ch.Link.Label()}).Warnf("chapter unavailable")
				}
			},
			OnVolume: func(v volume.Flushed) {
				logSvc.With(ui.Fields{"volume": v.Name, "chapters": v.Count}).Infof("volume saved")
			},
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(orch, logSvc),
		ReadHeaderTimeout: 10 * time.Second,
		// progress streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		orch.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logSvc.Errorf("http shutdown error: %v", err)
		}
	}()

	logSvc.With(ui.Fields{"addr": cfg.Listen}).Infof("api server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if sess := orch.Session(); sess != nil {
		sess.Wait()
	}
	logSvc.Infof("api server stopped")
	return nil
}
