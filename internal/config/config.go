// Package config handles TOML-based configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"sportstream/internal/httputil"
	"sportstream/internal/media"
)

// Duration is a time.Duration written as a string such as "10m" or "3s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Domain is one [[domains]] entry.
type Domain struct {
	URL    string          `toml:"url"`
	Format media.URLFormat `toml:"format"`
}

// Config holds all application configuration.
type Config struct {
	Providers       []string `toml:"providers"`
	Endpoints       []string `toml:"endpoints"`
	Proxies         []string `toml:"proxies"`
	DirectFetch     bool     `toml:"direct_fetch"`
	IntermediaryURL string   `toml:"intermediary_url"`
	IntermediaryKey string   `toml:"intermediary_key"`
	Domains         []Domain `toml:"domains"`

	SuccessTTL Duration `toml:"success_ttl"`
	FailureTTL Duration `toml:"failure_ttl"`
	DomainTTL  Duration `toml:"domain_ttl"`

	PageTimeout         Duration `toml:"page_timeout"`
	ProviderTimeout     Duration `toml:"provider_timeout"`
	IntermediaryTimeout Duration `toml:"intermediary_timeout"`
	ProbeTimeout        Duration `toml:"probe_timeout"`

	StrictProbe   bool   `toml:"strict_probe"`
	StateBackend  string `toml:"state_backend"`
	StatePath     string `toml:"state_path"`
	ProbeSchedule string `toml:"probe_schedule"`

	Listen string `toml:"listen"`
	APIKey string `toml:"api_key"`

	Player    string   `toml:"player"`
	RecordDir string   `toml:"record_dir"`
	RecordFor Duration `toml:"record_for"`

	LogLevel string `toml:"log_level"`
	LogJSON  bool   `toml:"log_json"`
	Debug    bool   `toml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DirectFetch:         true,
		SuccessTTL:          Duration{10 * time.Minute},
		FailureTTL:          Duration{5 * time.Minute},
		DomainTTL:           Duration{5 * time.Minute},
		PageTimeout:         Duration{10 * time.Second},
		ProviderTimeout:     Duration{8 * time.Second},
		IntermediaryTimeout: Duration{10 * time.Second},
		ProbeTimeout:        Duration{3 * time.Second},
		StateBackend:        "file",
		ProbeSchedule:       "@every 5m",
		Listen:              "127.0.0.1:8087",
		Player:              "mpv",
		RecordDir:           "~/Videos/sportstream",
		RecordFor:           Duration{2 * time.Hour},
		LogLevel:            "info",
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sportstream"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sportstream"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	for _, p := range c.Providers {
		if err := httputil.ValidateURL(p); err != nil {
			return fmt.Errorf("providers: %q: %w", p, err)
		}
	}
	for _, e := range c.Endpoints {
		if !strings.Contains(e, "{id}") {
			return fmt.Errorf("endpoints: %q has no {id} placeholder", e)
		}
	}
	for _, p := range c.Proxies {
		if err := httputil.ValidateURL(p); err != nil {
			return fmt.Errorf("proxies: %q: %w", p, err)
		}
	}
	if c.IntermediaryURL != "" {
		if err := httputil.ValidateURL(c.IntermediaryURL); err != nil {
			return fmt.Errorf("intermediary_url: %w", err)
		}
	}
	for i, d := range c.Domains {
		if err := httputil.ValidateURL(d.URL); err != nil {
			return fmt.Errorf("domains[%d].url: %w", i, err)
		}
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"success_ttl", c.SuccessTTL},
		{"failure_ttl", c.FailureTTL},
		{"domain_ttl", c.DomainTTL},
		{"page_timeout", c.PageTimeout},
		{"provider_timeout", c.ProviderTimeout},
		{"intermediary_timeout", c.IntermediaryTimeout},
		{"probe_timeout", c.ProbeTimeout},
		{"record_for", c.RecordFor},
	}
	for _, d := range durations {
		if d.d.Duration <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.FailureTTL.Duration >= c.SuccessTTL.Duration {
		return fmt.Errorf("failure_ttl (%s) must be shorter than success_ttl (%s)", c.FailureTTL, c.SuccessTTL)
	}

	switch c.StateBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unsupported state_backend %q (valid: file, sqlite)", c.StateBackend)
	}

	switch c.Player {
	case "mpv", "vlc", "iina", "celluloid":
	default:
		return fmt.Errorf("unsupported player %q (valid: mpv, vlc, iina, celluloid)", c.Player)
	}

	if _, err := cron.ParseStandard(c.ProbeSchedule); err != nil {
		return fmt.Errorf("probe_schedule %q: %w", c.ProbeSchedule, err)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	return nil
}

// EmbedDomains converts the [[domains]] entries into priority-ordered embed domains.
func (c *Config) EmbedDomains() []media.EmbedDomain {
	out := make([]media.EmbedDomain, 0, len(c.Domains))
	for _, d := range c.Domains {
		out = append(out, media.EmbedDomain{URL: d.URL, Format: d.Format})
	}
	return out
}

// dataDir returns the XDG data directory for sportstream.
func dataDir() (string, error) {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "sportstream"), nil
}

// HistoryPath returns the path to the watch history file.
func HistoryPath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.tsv"), nil
}

// ExpandRecordDir resolves ~ in the recording directory path.
func (c *Config) ExpandRecordDir() (string, error) {
	return expandHome(c.RecordDir)
}

// ResolvedStatePath returns state_path, or the default location for the backend.
func (c *Config) ResolvedStatePath() (string, error) {
	if c.StatePath != "" {
		return expandHome(c.StatePath)
	}

	dir, err := dataDir()
	if err != nil {
		return "", err
	}

	name := "domain.json"
	if c.StateBackend == "sqlite" {
		name = "state.db"
	}
	return filepath.Join(dir, name), nil
}

// expandHome resolves a leading ~ in path.
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
