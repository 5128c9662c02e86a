// Package config holds the full service configuration: a YAML file merged
// over defaults, with credentials overridable from the environment so they
// stay out of config files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aecintel/meropipe/docintel"
	"github.com/aecintel/meropipe/ingest"
	"github.com/aecintel/meropipe/ner"
	"github.com/aecintel/meropipe/ocr"
	"github.com/aecintel/meropipe/scrape"
	"github.com/aecintel/meropipe/store"
	"github.com/aecintel/meropipe/textembed"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreREST   = "rest"
)

// StoreConfig selects and configures the document-store backend.
type StoreConfig struct {
	// Backend is "sqlite" (local) or "rest" (remote document store).
	Backend string `yaml:"backend"`

	// Path of the SQLite database for the sqlite backend.
	Path string `yaml:"path"`

	// REST holds the remote backend settings.
	REST store.RESTConfig `yaml:"rest"`
}

// WatchConfig configures the drop-directory watcher.
type WatchConfig struct {
	// Debounce quiet period before a new file is handled. Default: 2s.
	Debounce time.Duration `yaml:"debounce"`

	// ScanExisting drains files already present at startup.
	ScanExisting bool `yaml:"scan_existing"`
}

// Config is the full service configuration.
type Config struct {
	// Listen address of the HTTP service. Default: ":8080".
	Listen string `yaml:"listen"`

	// DataDir is the drop directory files are ingested from.
	// Default: "data".
	DataDir string `yaml:"data_dir"`

	// ChunkSize for extracted text, in runes. Default: 10000.
	ChunkSize int `yaml:"chunk_size"`

	Store    StoreConfig      `yaml:"store"`
	DocIntel docintel.Config  `yaml:"docintel"`
	OCR      ocr.Config       `yaml:"ocr"`
	NER      ner.Config       `yaml:"ner"`
	Embed    textembed.Config `yaml:"embed"`
	Ingest   ingest.Config    `yaml:"ingest"`
	Watch    WatchConfig      `yaml:"watch"`
	Scrape   scrape.Config    `yaml:"scrape"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Listen:    ":8080",
		DataDir:   "data",
		ChunkSize: 10000,
		Store: StoreConfig{
			Backend: StoreSQLite,
			Path:    "meropipe.db",
		},
	}
}

// Load reads a YAML config file merged over Default, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// applyEnv overrides endpoints and keys from the environment, so secrets
// never need to live in the YAML file.
func (c *Config) applyEnv() {
	envOverride(&c.DocIntel.Endpoint, "DOC_INTEL_ENDPOINT")
	envOverride(&c.DocIntel.Key, "DOC_INTEL_KEY")
	envOverride(&c.OCR.Endpoint, "OCR_ENDPOINT")
	envOverride(&c.OCR.Key, "OCR_KEY")
	envOverride(&c.NER.Endpoint, "NER_ENDPOINT")
	envOverride(&c.NER.Key, "NER_KEY")
	envOverride(&c.Embed.Endpoint, "EMBED_ENDPOINT")
	envOverride(&c.Embed.Key, "EMBED_KEY")
	envOverride(&c.Store.REST.Endpoint, "STORE_ENDPOINT")
	envOverride(&c.Store.REST.Key, "STORE_KEY")
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be > 0")
	}
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case StoreREST:
		if c.Store.REST.Endpoint == "" {
			return fmt.Errorf("store.rest.endpoint is required for the rest backend")
		}
	default:
		return fmt.Errorf("unsupported store backend %q (use sqlite or rest)", c.Store.Backend)
	}
	return nil
}
