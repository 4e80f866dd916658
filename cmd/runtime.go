package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/noveld/internal/config"
	"github.com/brogergvhs/noveld/internal/fetcher"
	"github.com/brogergvhs/noveld/internal/scrape"
	"github.com/brogergvhs/noveld/internal/storage"
	"github.com/brogergvhs/noveld/internal/ui"
	"github.com/brogergvhs/noveld/internal/util"
)

// httpFlags are shared by every command that talks to a site.
type httpFlags struct {
	cookie           string
	cookieFile       string
	userAgent        string
	respectRobots    bool
	cloudflareBypass bool
	maxRPS           float64
}

func addHTTPFlags(cmd *cobra.Command, f *httpFlags) {
	cmd.Flags().StringVar(&f.cookie, "cookie", "", "cookie string, e.g. \"key=value; other=123\"")
	cmd.Flags().StringVar(&f.cookieFile, "cookie-file", "", "path to a text file with cookies (one header line)")
	cmd.Flags().StringVar(&f.userAgent, "user-agent", "", "override User-Agent")
	cmd.Flags().BoolVar(&f.respectRobots, "respect-robots", false, "skip pages disallowed by robots.txt")
	cmd.Flags().BoolVar(&f.cloudflareBypass, "cloudflare-bypass", false, "wrap the transport with the Cloudflare bypass")
	cmd.Flags().Float64Var(&f.maxRPS, "max-rps", 0, "max requests per second per host (0 = unlimited)")
}

func (f *httpFlags) apply(o *config.Options) {
	o.Cookie = f.cookie
	o.CookieFile = f.cookieFile
	o.UserAgent = f.userAgent
	o.RespectRobots = f.respectRobots
	o.CloudflareBypass = f.cloudflareBypass
	o.MaxRPS = f.maxRPS
}

// scrapeFlags are shared by download and serve.
type scrapeFlags struct {
	volumeSize   int
	batchSize    int
	requestDelay int
	concurrency  int
	timeoutMs    int
	retryTimes   int
	jitterMin    int
	jitterMax    int
	noClean      bool

	output       string
	downloadPath string
	downloadsDir string
}

func addScrapeFlags(cmd *cobra.Command, f *scrapeFlags) {
	cmd.Flags().IntVar(&f.volumeSize, "volume-size", 0, "chapters per volume file (1-1000)")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "chapters fetched per batch (1-100)")
	cmd.Flags().IntVar(&f.requestDelay, "request-delay", 0, "base delay between chapter requests in ms (50-5000)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "parallel chapter fetches within a batch (1-32)")
	cmd.Flags().IntVar(&f.timeoutMs, "timeout", 0, "per request timeout in ms")
	cmd.Flags().IntVar(&f.retryTimes, "retries", 0, "retries for a failed chapter fetch (0-10)")
	cmd.Flags().IntVar(&f.jitterMin, "jitter-min", 0, "minimum random delay added to request-delay in ms")
	cmd.Flags().IntVar(&f.jitterMax, "jitter-max", 0, "maximum random delay added to request-delay in ms")
	cmd.Flags().BoolVar(&f.noClean, "no-clean", false, "keep empty lines in chapter bodies")

	cmd.Flags().StringVar(&f.output, "output", "", "existing directory volumes are written into")
	cmd.Flags().StringVar(&f.downloadPath, "download-path", "", "sub path inside the output directory")
	cmd.Flags().StringVar(&f.downloadsDir, "downloads-dir", "", "fallback folder when the output directory cannot be used")
}

func (f *scrapeFlags) apply(cmd *cobra.Command, o *config.Options) {
	o.VolumeSize = f.volumeSize
	o.BatchSize = f.batchSize
	o.RequestDelay = f.requestDelay
	o.Concurrency = f.concurrency
	o.TimeoutMs = f.timeoutMs
	o.NoClean = f.noClean
	o.Output = f.output
	o.DownloadPath = f.downloadPath
	o.DownloadsDir = f.downloadsDir

	// zero is a meaningful value for these, so only explicit flags count
	if cmd.Flags().Changed("retries") {
		o.RetryTimes = &f.retryTimes
	}
	if cmd.Flags().Changed("jitter-min") {
		o.JitterMin = &f.jitterMin
	}
	if cmd.Flags().Changed("jitter-max") {
		o.JitterMax = &f.jitterMax
	}
}

func settingsFrom(cfg *config.Config) scrape.Settings {
	s := scrape.DefaultSettings()
	s.VolumeSize = cfg.VolumeSize
	s.BatchSize = cfg.BatchSize
	s.RequestDelay = time.Duration(cfg.RequestDelay) * time.Millisecond
	s.Concurrency = cfg.Concurrency
	s.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	s.RetryTimes = cfg.RetryTimes
	s.JitterMin = time.Duration(cfg.JitterMin) * time.Millisecond
	s.JitterMax = time.Duration(cfg.JitterMax) * time.Millisecond
	s.CleanEmptyLines = cfg.Clean()
	s.DownloadPath = cfg.DownloadPath
	return s
}

// newFetcher builds the HTTP client and fetcher for cfg. onBytes may be nil.
func newFetcher(cfg *config.Config, log *ui.Logger, onBytes func(int64)) (*fetcher.HTTPFetcher, error) {
	ua := util.PickUserAgent(cfg.UserAgent)

	client, err := util.NewHTTPClient(util.HTTPClientOptions{
		// per request deadlines come from the orchestrator
		Timeout:          time.Duration(cfg.TimeoutMs)*time.Millisecond + 5*time.Second,
		UserAgent:        ua,
		Cookie:           cfg.Cookie,
		CookieFile:       cfg.CookieFile,
		CloudflareBypass: cfg.CloudflareBypass,
		DebugLogger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}

	var robots *fetcher.RobotsAgent
	if cfg.RespectRobots {
		robots = fetcher.NewRobotsAgent(&http.Client{Timeout: 10 * time.Second}, ua, 0)
	}

	return fetcher.NewHTTPFetcher(fetcher.Options{
		Client:       client,
		UserAgent:    ua,
		MaxBodyBytes: cfg.MaxBodyBytes,
		MaxRPS:       cfg.MaxRPS,
		Robots:       robots,
		OnBytes:      onBytes,
		Logger:       log,
	}), nil
}

// newSink wires the output directory (when configured) and the fallback
// downloads folder.
func newSink(cfg *config.Config, log *ui.Logger) (*storage.Sink, string) {
	var dir storage.Writer
	if cfg.Output != "" {
		dir = storage.NewDirWriter(cfg.Output)
	}

	downloads := cfg.DownloadsDir
	if downloads == "" {
		downloads = storage.DefaultDownloadsDir()
	}

	return storage.NewSink(dir, storage.NewFileDownloader(downloads), log), downloads
}
