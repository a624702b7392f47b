package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/pulsefeed/internal/feed"
	"github.com/TobiSchelling/pulsefeed/internal/service"
	"github.com/TobiSchelling/pulsefeed/internal/trending"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// DataDirEnv overrides output.data_dir when set.
const DataDirEnv = "PULSEFEED_DATA_DIR"

type Config struct {
	Sources  Sources  `yaml:"sources"`
	Scoring  Scoring  `yaml:"scoring"`
	Feed     Feed     `yaml:"feed"`
	Fetch    Fetch    `yaml:"fetch"`
	Server   Server   `yaml:"server"`
	Schedule Schedule `yaml:"schedule"`
	Metrics  Metrics  `yaml:"metrics"`
	Output   Output   `yaml:"output"`
	Logging  Logging  `yaml:"logging"`
}

type Sources struct {
	Feeds      []Source `yaml:"feeds"`
	NewsAPI    NewsAPI  `yaml:"newsapi"`
	DaysBack   int      `yaml:"days_back"`
	MaxPerFeed int      `yaml:"max_per_feed"`
}

type NewsAPI struct {
	Enabled   bool        `yaml:"enabled"`
	APIKeyEnv string      `yaml:"api_key_env"`
	Queries   []NewsQuery `yaml:"queries"`
}

type NewsQuery struct {
	Query    string `yaml:"query"`
	Category string `yaml:"category"`
}

type Source struct {
	URL      string `yaml:"url"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type Scoring struct {
	trending.ScoringConfig `yaml:",inline"`
	MinScore               float64 `yaml:"min_score"`
	TopicsPerCategory      int     `yaml:"topics_per_category"`
	RetentionHours         float64 `yaml:"retention_hours"`
	PerCategory            bool    `yaml:"per_category"`
}

type Feed struct {
	PersonalizationWeight  float64 `yaml:"personalization_weight"`
	FreshnessWeight        float64 `yaml:"freshness_weight"`
	PopularityWeight       float64 `yaml:"popularity_weight"`
	SerendipityWeight      float64 `yaml:"serendipity_weight"`
	MaxArticlesPerFeed     int     `yaml:"max_articles_per_feed"`
	FreshnessHalfLifeHours float64 `yaml:"freshness_half_life_hours"`
	CandidateDays          int     `yaml:"candidate_days"`
	CandidateLimit         int     `yaml:"candidate_limit"`
	InterestLookbackDays   int     `yaml:"interest_lookback_days"`
	SerendipitySeed        uint64  `yaml:"serendipity_seed"`
}

type Fetch struct {
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	BatchSize         int     `yaml:"batch_size"`
}

type Server struct {
	Port                  int     `yaml:"port"`
	InteractionsPerSecond float64 `yaml:"interactions_per_second"`
	InteractionBurst      int     `yaml:"interaction_burst"`
}

type Schedule struct {
	Enabled  bool   `yaml:"enabled"`
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for pulsefeed.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "pulsefeed")
}

// DataDir returns the XDG data directory for pulsefeed.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "pulsefeed")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > $XDG_CONFIG_HOME/pulsefeed/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'pulsefeed init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			NewsAPI:    NewsAPI{Enabled: true, APIKeyEnv: "NEWSAPI_KEY"},
			DaysBack:   7,
			MaxPerFeed: 20,
		},
		Scoring: Scoring{
			ScoringConfig:     trending.DefaultScoringConfig(),
			TopicsPerCategory: service.DefaultTopicsPerCategory,
			RetentionHours:    trending.DefaultTimeWindowHours,
		},
		Feed: Feed{
			PersonalizationWeight:  feed.DefaultPersonalizationWeight,
			FreshnessWeight:        feed.DefaultFreshnessWeight,
			PopularityWeight:       feed.DefaultPopularityWeight,
			SerendipityWeight:      feed.DefaultSerendipityWeight,
			MaxArticlesPerFeed:     feed.DefaultMaxArticlesPerFeed,
			FreshnessHalfLifeHours: feed.DefaultFreshnessHalfLife.Hours(),
			CandidateDays:          7,
			CandidateLimit:         service.DefaultCandidateLimit,
			InterestLookbackDays:   30,
			SerendipitySeed:        1,
		},
		Fetch:    Fetch{TimeoutSeconds: 15, RequestsPerSecond: 2, Burst: 4, BatchSize: 50},
		Server:   Server{Port: 8000, InteractionsPerSecond: 20, InteractionBurst: 40},
		Schedule: Schedule{Cron: "*/15 * * * *", Timezone: "UTC"},
		Metrics:  Metrics{Enabled: true},
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the scoring parameters and default feed weights.
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if c.Scoring.MinScore < 0 || math.IsNaN(c.Scoring.MinScore) {
		return fmt.Errorf("scoring: %w: min_score must be non-negative", trending.ErrInvalidConfig)
	}
	if err := c.DefaultFeedConfiguration("").Validate(); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	for i, s := range c.Sources.Feeds {
		if s.URL == "" {
			return fmt.Errorf("sources.feeds[%d]: url is required", i)
		}
	}
	for i, q := range c.Sources.NewsAPI.Queries {
		if q.Query == "" {
			return fmt.Errorf("sources.newsapi.queries[%d]: query is required", i)
		}
	}
	return nil
}

// GetDataDir returns the effective data directory: $PULSEFEED_DATA_DIR, then
// output.data_dir, then the XDG default.
func (c *Config) GetDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database path inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "pulsefeed.db")
}

// ScoringConfig returns the trending parameters.
func (c *Config) ScoringConfig() trending.ScoringConfig {
	return c.Scoring.ScoringConfig
}

// DefaultFeedConfiguration returns the configuration new users start with.
func (c *Config) DefaultFeedConfiguration(userID string) feed.Configuration {
	return feed.Configuration{
		UserID:                userID,
		PersonalizationWeight: c.Feed.PersonalizationWeight,
		FreshnessWeight:       c.Feed.FreshnessWeight,
		PopularityWeight:      c.Feed.PopularityWeight,
		SerendipityWeight:     c.Feed.SerendipityWeight,
		MaxArticlesPerFeed:    c.Feed.MaxArticlesPerFeed,
	}
}

// ServiceOptions converts the config into service options.
func (c *Config) ServiceOptions() service.Options {
	return service.Options{
		Scoring:           c.ScoringConfig(),
		MinScore:          c.Scoring.MinScore,
		TopicsPerCategory: c.Scoring.TopicsPerCategory,
		RetentionHours:    c.Scoring.RetentionHours,
		FreshnessHalfLife: time.Duration(c.Feed.FreshnessHalfLifeHours * float64(time.Hour)),
		CandidateWindow:   time.Duration(c.Feed.CandidateDays) * 24 * time.Hour,
		CandidateLimit:    c.Feed.CandidateLimit,
		InterestLookback:  time.Duration(c.Feed.InterestLookbackDays) * 24 * time.Hour,
		SerendipitySeed:   c.Feed.SerendipitySeed,
		DefaultFeed:       c.DefaultFeedConfiguration,
	}
}

// FetchTimeout returns the per-request HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchLimiter returns the limiter shared by outbound feed and article
// requests. A non-positive rate disables throttling.
func (c *Config) FetchLimiter() *rate.Limiter {
	if c.Fetch.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := c.Fetch.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.Fetch.RequestsPerSecond), burst)
}
