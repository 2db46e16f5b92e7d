package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultSources []byte

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	// placeholder text shipped in the key file template
	apiKeyPlaceholder = "PASTE_YOUR_GEMINI_API_KEY_HERE"
)

// Feed is one RSS/Atom source.
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Canadian bool   `yaml:"canadian"`
}

// Catalog is one CKAN portal exposing package_search.
type Catalog struct {
	Name      string `yaml:"name"`
	SearchURL string `yaml:"search_url"`
	BaseURL   string `yaml:"base_url"`
}

type Sources struct {
	Feeds    []Feed    `yaml:"feeds"`
	Catalogs []Catalog `yaml:"catalogs"`
}

// Count is the number of sources shown on the briefing page.
func (s Sources) Count() int {
	return len(s.Feeds) + len(s.Catalogs)
}

type Config struct {
	// Ranking model
	Provider     string // gemini | openai
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	Temperature  float32

	// Sources
	SourcesFile string
	Sources     Sources

	// Fetch policy
	Lookback       time.Duration
	MinFeedItems   int
	MaxFeedEntries int
	MaxCatalogRows int
	UserAgent      string
	FeedTimeout    time.Duration
	CatalogTimeout time.Duration
	ModelTimeout   time.Duration
	HostInterval   time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// State
	DataDir       string
	StateFile     string
	SeenRetention time.Duration
	DatabaseURL   string

	// Output
	DocsDir      string
	ArchiveDir   string
	ArchiveLinks int

	// Optional notifier
	TelegramToken  string
	TelegramChatID string
	PageURL        string

	// Observability. DEBUG and LOG_FORMAT are read by internal/logger.
	MetricsTextfile string
}

func Load() (*Config, error) {
	cfg := &Config{
		Provider:       ProviderGemini,
		GeminiModel:    "gemini-2.0-flash",
		OpenAIModel:    "gpt-4o-mini",
		Temperature:    0.2,
		Lookback:       48 * time.Hour,
		MinFeedItems:   10,
		MaxFeedEntries: 20,
		MaxCatalogRows: 20,
		UserAgent:      "DataScout/1.0",
		FeedTimeout:    15 * time.Second,
		CatalogTimeout: 30 * time.Second,
		ModelTimeout:   120 * time.Second,
		HostInterval:   500 * time.Millisecond,
		RetryAttempts:  2,
		RetryDelay:     5 * time.Second,
		SeenRetention:  14 * 24 * time.Hour,
		ArchiveLinks:   30,
	}

	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		cfg.Provider = strings.ToLower(p)
	}
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", cfg.OpenAIModel)

	cfg.Lookback = time.Duration(getEnvIntOrDefault("HOURS_LOOKBACK", 48)) * time.Hour
	cfg.MinFeedItems = getEnvIntOrDefault("MIN_RSS_ITEMS", cfg.MinFeedItems)
	cfg.MaxFeedEntries = getEnvIntOrDefault("MAX_FEED_ENTRIES", cfg.MaxFeedEntries)
	cfg.MaxCatalogRows = getEnvIntOrDefault("MAX_CATALOG_ROWS", cfg.MaxCatalogRows)
	cfg.FeedTimeout = time.Duration(getEnvIntOrDefault("FEED_TIMEOUT_SECONDS", 15)) * time.Second
	cfg.CatalogTimeout = time.Duration(getEnvIntOrDefault("CATALOG_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.ModelTimeout = time.Duration(getEnvIntOrDefault("MODEL_TIMEOUT_SECONDS", 120)) * time.Second
	cfg.HostInterval = time.Duration(getEnvIntOrDefault("HOST_INTERVAL_MS", 500)) * time.Millisecond
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryDelay = time.Duration(getEnvIntOrDefault("RETRY_DELAY_SECONDS", 5)) * time.Second

	cfg.DataDir = getEnvOrDefault("DATA_DIR", "data")
	cfg.StateFile = filepath.Join(cfg.DataDir, "seen_items.json")
	cfg.SeenRetention = time.Duration(getEnvIntOrDefault("SEEN_RETENTION_DAYS", 14)) * 24 * time.Hour
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.DocsDir = getEnvOrDefault("DOCS_DIR", "docs")
	cfg.ArchiveDir = filepath.Join(cfg.DocsDir, "archive")
	cfg.ArchiveLinks = getEnvIntOrDefault("ARCHIVE_LINKS", cfg.ArchiveLinks)

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.PageURL = os.Getenv("PAGE_URL")
	cfg.MetricsTextfile = os.Getenv("METRICS_TEXTFILE")

	cfg.SourcesFile = os.Getenv("SOURCES_FILE")
	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	cfg.GeminiAPIKey = readAPIKey(getEnvOrDefault("GEMINI_API_KEY_FILE", "gemini_api_key.txt"), "GEMINI_API_KEY")
	cfg.OpenAIAPIKey = readAPIKey(getEnvOrDefault("OPENAI_API_KEY_FILE", "openai_api_key.txt"), "OPENAI_API_KEY")

	return cfg, cfg.Validate()
}

// LoadSources parses the source list at path, or the embedded default list
// when path is empty.
func LoadSources(path string) (Sources, error) {
	data := defaultSources
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Sources{}, fmt.Errorf("reading sources file: %w", err)
		}
		data = b
	}

	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Sources{}, fmt.Errorf("parsing sources: %w", err)
	}
	return s, nil
}

// readAPIKey prefers the key file and falls back to the environment.
func readAPIKey(path, envKey string) string {
	if b, err := os.ReadFile(path); err == nil {
		key := strings.TrimSpace(string(b))
		if key != "" && !strings.HasPrefix(key, "PASTE_YOUR_") && key != apiKeyPlaceholder {
			return key
		}
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// APIKey returns the credential of the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// TelegramEnabled reports whether the digest notifier is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("add your API key to gemini_api_key.txt or set GEMINI_API_KEY")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("add your API key to openai_api_key.txt or set OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be 'gemini' or 'openai', got %q", c.Provider)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("HOURS_LOOKBACK must be positive")
	}
	if c.SeenRetention <= 0 {
		return fmt.Errorf("SEEN_RETENTION_DAYS must be positive")
	}
	for i, f := range c.Sources.Feeds {
		if f.Name == "" || f.URL == "" {
			return fmt.Errorf("feed %d: name and url are required", i)
		}
	}
	for i, cat := range c.Sources.Catalogs {
		if cat.Name == "" || cat.SearchURL == "" || cat.BaseURL == "" {
			return fmt.Errorf("catalog %d: name, search_url and base_url are required", i)
		}
	}
	return nil
}
