package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// scraping
	VolumeSize      int   `yaml:"volume_size"`
	BatchSize       int   `yaml:"batch_size"`
	RequestDelay    int   `yaml:"request_delay"`
	Concurrency     int   `yaml:"concurrency"`
	TimeoutMs       int   `yaml:"timeout_ms"`
	RetryTimes      int   `yaml:"retry_times"`
	JitterMin       int   `yaml:"jitter_min"`
	JitterMax       int   `yaml:"jitter_max"`
	CleanEmptyLines *bool `yaml:"clean_empty_lines"`

	// output
	Output       string `yaml:"output"`
	DownloadPath string `yaml:"download_path"`
	DownloadsDir string `yaml:"downloads_dir"`

	DefaultURL      string `yaml:"default_url"`
	DefaultChapters string `yaml:"default_chapters"`

	// http
	Cookie           string  `yaml:"cookie"`
	CookieFile       string  `yaml:"cookie_file"`
	UserAgent        string  `yaml:"user_agent"`
	RespectRobots    bool    `yaml:"respect_robots"`
	CloudflareBypass bool    `yaml:"cloudflare_bypass"`
	MaxRPS           float64 `yaml:"max_rps"`
	MaxBodyBytes     int64   `yaml:"max_body_bytes"`

	Listen string `yaml:"listen"`
	Debug  bool   `yaml:"debug"`
}

// Options are command line overrides; zero values leave the profile alone.
type Options struct {
	IgnoreConfig bool
	Debug        bool

	VolumeSize   int
	BatchSize    int
	RequestDelay int
	Concurrency  int
	TimeoutMs    int
	RetryTimes   *int
	JitterMin    *int
	JitterMax    *int
	NoClean      bool

	Output       string
	DownloadPath string
	DownloadsDir string
	DefaultURL   string
	Chapters     string

	Cookie           string
	CookieFile       string
	UserAgent        string
	RespectRobots    bool
	CloudflareBypass bool
	MaxRPS           float64
	Listen           string
}

func boolPtr(b bool) *bool { return &b }

func DefaultConfig() *Config {
	return &Config{
		VolumeSize:      100,
		BatchSize:       50,
		RequestDelay:    150,
		Concurrency:     10,
		TimeoutMs:       15000,
		RetryTimes:      2,
		JitterMin:       30,
		JitterMax:       80,
		CleanEmptyLines: boolPtr(true),
		Output:          "",
		DownloadsDir:    "",
		MaxBodyBytes:    8 << 20,
		Listen:          "127.0.0.1:8765",
	}
}

// Clean reports the effective clean_empty_lines value.
func (c *Config) Clean() bool {
	return c.CleanEmptyLines == nil || *c.CleanEmptyLines
}

type bound struct {
	name     string
	val      int
	min, max int
}

// Validate checks every numeric setting against its allowed range.
func (c *Config) Validate() error {
	var errs []error
	for _, b := range []bound{
		{"volume_size", c.VolumeSize, 1, 1000},
		{"batch_size", c.BatchSize, 1, 100},
		{"request_delay", c.RequestDelay, 50, 5000},
		{"concurrency", c.Concurrency, 1, 32},
		{"timeout_ms", c.TimeoutMs, 1000, 120000},
		{"retry_times", c.RetryTimes, 0, 10},
		{"jitter_min", c.JitterMin, 0, 5000},
		{"jitter_max", c.JitterMax, 0, 5000},
	} {
		if b.val < b.min || b.val > b.max {
			errs = append(errs, fmt.Errorf("%s must be between %d and %d, got %d", b.name, b.min, b.max, b.val))
		}
	}
	if c.JitterMin > c.JitterMax {
		errs = append(errs, fmt.Errorf("jitter_min (%d) must not exceed jitter_max (%d)", c.JitterMin, c.JitterMax))
	}
	if c.MaxRPS < 0 {
		errs = append(errs, fmt.Errorf("max_rps must not be negative, got %g", c.MaxRPS))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("max_body_bytes must not be negative, got %d", c.MaxBodyBytes))
	}

	return errors.Join(errs...)
}

func SaveYAML(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func loadYAML(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// missing keys keep their defaults
	c := DefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Load reads one profile file and validates it.
func Load(path string) (*Config, error) {
	cfg, err := loadYAML(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadMerged loads the active profile (or the defaults), applies the command
// line overrides and validates the result. The second value describes where
// the settings came from.
func LoadMerged(opts Options) (*Config, string, error) {
	cfg, source := DefaultConfig(), "(ignored config)"
	if !opts.IgnoreConfig {
		activePath, err := ActiveConfigPath()
		switch {
		case errors.Is(err, ErrNoConfig) || activePath == "":
			source = "(default config in memory)\nRun `noveld config init` to create an actual config\n"
		case err != nil:
			return nil, "", err
		default:
			if cfg, err = loadYAML(activePath); err != nil {
				return nil, "", fmt.Errorf("failed to load config %s: %w", activePath, err)
			}
			source = activePath
		}
	}

	mergeConfig(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return nil, source, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, source, nil
}

func mergeConfig(c *Config, o Options) {
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setPtr := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	setInt(&c.VolumeSize, o.VolumeSize)
	setInt(&c.BatchSize, o.BatchSize)
	setInt(&c.RequestDelay, o.RequestDelay)
	setInt(&c.Concurrency, o.Concurrency)
	setInt(&c.TimeoutMs, o.TimeoutMs)
	setPtr(&c.RetryTimes, o.RetryTimes)
	setPtr(&c.JitterMin, o.JitterMin)
	setPtr(&c.JitterMax, o.JitterMax)
	if o.NoClean {
		c.CleanEmptyLines = boolPtr(false)
	}

	setStr(&c.Output, o.Output)
	setStr(&c.DownloadPath, o.DownloadPath)
	setStr(&c.DownloadsDir, o.DownloadsDir)
	setStr(&c.DefaultURL, o.DefaultURL)
	setStr(&c.DefaultChapters, o.Chapters)

	setStr(&c.Cookie, o.Cookie)
	setStr(&c.CookieFile, o.CookieFile)
	setStr(&c.UserAgent, o.UserAgent)
	setStr(&c.Listen, o.Listen)
	if o.RespectRobots {
		c.RespectRobots = true
	}
	if o.CloudflareBypass {
		c.CloudflareBypass = true
	}
	if o.MaxRPS != 0 {
		c.MaxRPS = o.MaxRPS
	}
	if o.Debug {
		c.Debug = true
	}
}

func (c *Config) Print() {
	c.Fprint(os.Stdout)
}

func (c *Config) Fprint(w io.Writer) {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(w, format, args...) }

	p(" -volume_size: %d\n", c.VolumeSize)
	p(" -batch_size: %d\n", c.BatchSize)
	p(" -request_delay: %dms\n", c.RequestDelay)
	p(" -concurrency: %d\n", c.Concurrency)
	p(" -timeout_ms: %d\n", c.TimeoutMs)
	p(" -retry_times: %d\n", c.RetryTimes)
	p(" -jitter: %d-%dms\n", c.JitterMin, c.JitterMax)
	p(" -clean_empty_lines: %t\n", c.Clean())
	if c.Output != "" {
		p(" -output: %s\n", c.Output)
	}
	if c.DownloadPath != "" {
		p(" -download_path: %s\n", c.DownloadPath)
	}
	if c.DownloadsDir != "" {
		p(" -downloads_dir: %s\n", c.DownloadsDir)
	}
	if c.DefaultURL != "" {
		p(" -url: %s\n", c.DefaultURL)
	}
	if c.DefaultChapters != "" {
		p(" -chapters: %s\n", c.DefaultChapters)
	}
	if c.CookieFile != "" {
		p(" -cookie_file: %s\n", c.CookieFile)
	}
	if c.RespectRobots {
		p(" -respect_robots: %t\n", c.RespectRobots)
	}
	if c.CloudflareBypass {
		p(" -cloudflare_bypass: %t\n", c.CloudflareBypass)
	}
	if c.MaxRPS > 0 {
		p(" -max_rps: %g\n", c.MaxRPS)
	}
	if c.Debug {
		p(" -debug: %t\n", c.Debug)
	}
}

// Summary is the one-line description shown next to a profile label when
// choosing between profiles.
func (c *Config) Summary() string {
	parts := []string{
		fmt.Sprintf("%d ch/volume", c.VolumeSize),
		fmt.Sprintf("concurrency %d", c.Concurrency),
	}
	if c.DefaultURL != "" {
		site := c.DefaultURL
		if u, err := url.Parse(c.DefaultURL); err == nil && u.Host != "" {
			site = u.Host
		}
		parts = append(parts, site)
	}
	if c.Output != "" {
		parts = append(parts, "-> "+c.Output)
	}
	return strings.Join(parts, ", ")
}
