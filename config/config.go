// Package config loads the run configuration and the resources it points to.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pevans/newsmood/aggregate"
	"github.com/pevans/newsmood/llm"
	"github.com/pevans/newsmood/results"
	"github.com/pevans/newsmood/sentiment"
	"github.com/pevans/newsmood/wordlist"
)

// EnvPrefix prefixes environment overrides, e.g. NEWSMOOD_LLM_API_KEY.
const EnvPrefix = "NEWSMOOD"

// Config is the run configuration. It is read once and not modified after
// Load returns.
type Config struct {
	Profile    string           `mapstructure:"profile" json:"profile"`
	Resources  ResourceConfig   `mapstructure:"resources" json:"resources"`
	Crawl      CrawlConfig      `mapstructure:"crawl" json:"crawl"`
	Scoring    ScoringConfig    `mapstructure:"scoring" json:"scoring"`
	LLM        LLMConfig        `mapstructure:"llm" json:"llm"`
	Classifier ClassifierConfig `mapstructure:"classifier" json:"classifier"`
	Log        LogConfig        `mapstructure:"log" json:"log"`
	API        APIConfig        `mapstructure:"api" json:"api"`
	Store      StoreConfig      `mapstructure:"store" json:"store"`
}

// ResourceConfig points at the word lists and lexicon files.
type ResourceConfig struct {
	ContextWords  string   `mapstructure:"context_words" json:"context_words"`
	Blacklist     string   `mapstructure:"blacklist" json:"blacklist"`
	PositiveWords string   `mapstructure:"positive_words" json:"positive_words"`
	NegativeWords string   `mapstructure:"negative_words" json:"negative_words"`
	Lexicons      []string `mapstructure:"lexicons" json:"lexicons"`
	Overrides     string   `mapstructure:"overrides" json:"overrides"`
}

// CrawlConfig bounds discovery.
type CrawlConfig struct {
	MaxArticles int           `mapstructure:"max_articles" json:"max_articles"`
	MaxPages    int           `mapstructure:"max_pages" json:"max_pages"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

// ScoringConfig selects scoring methods and the aggregation grouping.
type ScoringConfig struct {
	Methods  []string `mapstructure:"methods" json:"methods"`
	Grouping string   `mapstructure:"grouping" json:"grouping"`
}

// LLMConfig configures the text-generation backend of the external method.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" json:"provider"`
	Model       string        `mapstructure:"model" json:"model"`
	APIKey      string        `mapstructure:"api_key" json:"api_key,omitempty"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url,omitempty"`
	Temperature float64       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

// ClassifierConfig configures the sentence classifier endpoint.
type ClassifierConfig struct {
	URL   string `mapstructure:"url" json:"url,omitempty"`
	Token string `mapstructure:"token" json:"token,omitempty"`
}

// LogConfig configures the run log.
type LogConfig struct {
	Dir string `mapstructure:"dir" json:"dir"`
}

// APIConfig configures the run API server.
type APIConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

// StoreConfig configures the result buffer.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" json:"dsn"`
}

// Load reads the configuration. When path is empty, newsmood.yaml in the
// working directory and ~/.newsmood/config.yaml are tried and a missing file
// is not an error. An explicit path must exist.
//
// Environment variables override file values, e.g. NEWSMOOD_CRAWL_MAX_PAGES.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", wordlist.ErrResourceNotFound, path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("newsmood")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".newsmood"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Relative resource paths are relative to the config file.
	if used := v.ConfigFileUsed(); used != "" {
		cfg.resolvePaths(filepath.Dir(used))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile", "site.yaml")

	v.SetDefault("resources.context_words", "context_words.txt")
	v.SetDefault("resources.blacklist", "blacklist.txt")
	v.SetDefault("resources.positive_words", "")
	v.SetDefault("resources.negative_words", "")
	v.SetDefault("resources.lexicons", []string{})
	v.SetDefault("resources.overrides", "")

	v.SetDefault("crawl.max_articles", 50)
	v.SetDefault("crawl.max_pages", 10)
	v.SetDefault("crawl.timeout", 10*time.Second)

	v.SetDefault("scoring.methods", []string{string(sentiment.MethodLexicon)})
	v.SetDefault("scoring.grouping", string(aggregate.GroupQuarter))

	v.SetDefault("llm.provider", llm.ProviderOpenAI)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("classifier.url", "")
	v.SetDefault("classifier.token", "")

	v.SetDefault("log.dir", "logs")
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("store.dsn", results.MemoryDSN)
}

func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	c.Profile = resolve(c.Profile)
	c.Resources.ContextWords = resolve(c.Resources.ContextWords)
	c.Resources.Blacklist = resolve(c.Resources.Blacklist)
	c.Resources.PositiveWords = resolve(c.Resources.PositiveWords)
	c.Resources.NegativeWords = resolve(c.Resources.NegativeWords)
	c.Resources.Overrides = resolve(c.Resources.Overrides)
	for i, p := range c.Resources.Lexicons {
		c.Resources.Lexicons[i] = resolve(p)
	}
}

// Validate checks value ranges. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Crawl.MaxArticles < 1 {
		return errors.New("crawl.max_articles must be at least 1")
	}
	if c.Crawl.MaxPages < 1 {
		return errors.New("crawl.max_pages must be at least 1")
	}
	if c.Crawl.Timeout <= 0 {
		return errors.New("crawl.timeout must be positive")
	}
	if _, err := c.Methods(); err != nil {
		return err
	}
	switch aggregate.Grouping(c.Scoring.Grouping) {
	case aggregate.GroupQuarter, aggregate.GroupAll:
	default:
		return fmt.Errorf("scoring.grouping must be %q or %q", aggregate.GroupQuarter, aggregate.GroupAll)
	}
	return nil
}

// Methods returns the configured scoring methods.
func (c *Config) Methods() ([]sentiment.Method, error) {
	return sentiment.ParseMethods(c.Scoring.Methods)
}

// LLMSettings converts the LLM section for llm.New.
func (c *Config) LLMSettings() llm.Config {
	return llm.Config{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
	}
}

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.Classifier.Token = mask(c.Classifier.Token)
	c.Resources.Lexicons = append([]string(nil), c.Resources.Lexicons...)
	c.Scoring.Methods = append([]string(nil), c.Scoring.Methods...)
	return c
}
