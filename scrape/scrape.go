// Package scrape acquires web pages for the pipeline. Each configured job
// fetches a page (headless browser with stealth, or plain HTTP), clips it
// to a CSS selector, sanitizes the HTML, converts it to markdown, and
// writes the result as a .txt file under category/date/ in the ingest drop
// directory, where the directory watcher picks it up.
//
// Target URLs and selectors come entirely from configuration; nothing is
// baked in.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Job is one configured scrape target.
type Job struct {
	// Name becomes the output file name (sanitized).
	Name string `json:"name" yaml:"name"`

	// URL of the page to fetch.
	URL string `json:"url" yaml:"url"`

	// Selector is a CSS selector for the content root. Empty clips
	// nothing and converts the whole document.
	Selector string `json:"selector" yaml:"selector"`

	// Category is the market category segment in the output path.
	Category string `json:"category" yaml:"category"`

	// Browser forces the headless-browser path for pages that need
	// JavaScript. Default is plain HTTP.
	Browser bool `json:"browser" yaml:"browser"`
}

// Config configures the scraper.
type Config struct {
	// OutputDir is the drop directory scraped pages are written into.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// RemoteBrowserURL is the WebSocket URL of an external Chrome.
	// Empty launches a local one on first browser job.
	RemoteBrowserURL string `json:"remote_browser_url" yaml:"remote_browser_url"`

	// Timeout per page fetch. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Jobs to run.
	Jobs []Job `json:"jobs" yaml:"jobs"`

	// Logger for progress and failures.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scraper runs configured scrape jobs.
type Scraper struct {
	cfg       Config
	logger    *slog.Logger
	client    *http.Client
	browser   *browserFetcher
	sanitizer *bluemonday.Policy
	md        *converter.Converter
}

// New creates a Scraper. The browser is launched lazily on the first job
// that needs it.
func New(cfg Config) *Scraper {
	cfg.defaults()
	return &Scraper{
		cfg:       cfg,
		logger:    cfg.Logger,
		client:    &http.Client{Timeout: cfg.Timeout},
		browser:   newBrowserFetcher(cfg.RemoteBrowserURL, cfg.Timeout, cfg.Logger),
		sanitizer: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Close shuts down the browser if one was launched.
func (s *Scraper) Close() error {
	return s.browser.Close()
}

// Summary is the outcome of one scrape run.
type Summary struct {
	Scraped int      `json:"scraped"`
	Failed  int      `json:"failed"`
	Files   []string `json:"files,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Run executes all configured jobs sequentially. Per-job failures are
// counted in the summary, not returned.
func (s *Scraper) Run(ctx context.Context) *Summary {
	sum := &Summary{}
	for _, job := range s.cfg.Jobs {
		path, err := s.RunJob(ctx, job)
		if err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", job.Name, err))
			s.logger.Error("scrape job failed", "job", job.Name, "url", job.URL, "error", err)
			continue
		}
		sum.Scraped++
		sum.Files = append(sum.Files, path)
		s.logger.Info("scrape job done", "job", job.Name, "file", path)
	}
	return sum
}

// RunJob fetches, converts, and writes one job. It returns the path of the
// written file.
func (s *Scraper) RunJob(ctx context.Context, job Job) (string, error) {
	if job.URL == "" {
		return "", fmt.Errorf("scrape: job %q has no url", job.Name)
	}

	var html string
	var err error
	if job.Browser {
		html, err = s.browser.Fetch(ctx, job.URL, job.Selector)
	} else {
		html, err = s.fetchHTTP(ctx, job.URL)
	}
	if err != nil {
		return "", err
	}

	text := s.Render(html, job.URL)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("scrape: %s produced no content", job.URL)
	}
	return s.write(job, text)
}

// Render sanitizes HTML and converts it to markdown. Conversion failures
// fall back to the sanitized text.
func (s *Scraper) Render(html, sourceURL string) string {
	sanitized := s.sanitizer.Sanitize(html)
	result, err := s.md.ConvertString(sanitized, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(result) == "" {
		return strings.TrimSpace(sanitized)
	}
	return strings.TrimSpace(result)
}

func (s *Scraper) fetchHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("scrape: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("scrape: fetch %s: status %d: %s", url, resp.StatusCode, string(body))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("scrape: read %s: %w", url, err)
	}
	return string(data), nil
}

// write stores the text under OutputDir/category/date/name-timestamp.txt.
// The category/date layout matches how the pipeline derives the category
// from a file reference.
func (s *Scraper) write(job Job, text string) (string, error) {
	category := job.Category
	if category == "" {
		category = "scraped"
	}
	now := time.Now()
	dir := filepath.Join(s.cfg.OutputDir, category, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("scrape: create output dir: %w", err)
	}
	name := fmt.Sprintf("%s-%d.txt", sanitizeName(job.Name), now.Unix())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("scrape: write %s: %w", path, err)
	}
	return path, nil
}

// sanitizeName keeps a job name filesystem-safe.
func sanitizeName(name string) string {
	if name == "" {
		return "page"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "page"
	}
	return out
}
