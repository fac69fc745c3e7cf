// Package config loads ragrouter settings from YAML with environment overrides.
//
// Environment variables use the RAGROUTER_ prefix and a double underscore for
// nesting: RAGROUTER_CLASSIFIER__MIN_SCORE=0.5 sets classifier.min_score.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/poiesic/ragrouter/ai"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGROUTER_"

// Vector store backends
const (
	VectorBackendChromem = "chromem"
	VectorBackendBadger  = "badger"
)

// Config is the top-level ragrouter configuration.
type Config struct {
	// DataDir holds the badger database. Empty means in-memory.
	DataDir string `yaml:"data_dir" koanf:"data_dir"`
	// IntentsFile, when set, is the intent tree source instead of the database.
	IntentsFile string `yaml:"intents_file" koanf:"intents_file"`
	LogLevel    string `yaml:"log_level" koanf:"log_level"`

	Vectors     VectorConfig      `yaml:"vectors" koanf:"vectors"`
	AI          AIConfig          `yaml:"ai" koanf:"ai"`
	Catalog     CatalogConfig     `yaml:"catalog" koanf:"catalog"`
	Classifier  ClassifierConfig  `yaml:"classifier" koanf:"classifier"`
	Channels    ChannelsConfig    `yaml:"channels" koanf:"channels"`
	PostProcess PostProcessConfig `yaml:"postprocess" koanf:"postprocess"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" koanf:"retrieval"`
}

// VectorConfig selects and locates the vector store.
type VectorConfig struct {
	Backend string `yaml:"backend" koanf:"backend"`
	// Path is the chromem persistence directory. Empty means in-memory.
	Path              string `yaml:"path" koanf:"path"`
	DefaultCollection string `yaml:"default_collection" koanf:"default_collection"`
}

// AIConfig configures the OpenAI-compatible services.
type AIConfig struct {
	Host            string `yaml:"host" koanf:"host"`
	EmbeddingHost   string `yaml:"embedding_host" koanf:"embedding_host"`
	RerankHost      string `yaml:"rerank_host" koanf:"rerank_host"`
	EmbeddingModel  string `yaml:"embedding_model" koanf:"embedding_model"`
	ClassifierModel string `yaml:"classifier_model" koanf:"classifier_model"`
	RerankModel     string `yaml:"rerank_model" koanf:"rerank_model"`
	Token           string `yaml:"token" koanf:"token"`
	MaxAttempts     int    `yaml:"max_attempts" koanf:"max_attempts"`
}

// CatalogConfig controls intent tree refreshing.
type CatalogConfig struct {
	// RefreshInterval reloads the tree periodically. Zero disables it.
	RefreshInterval time.Duration `yaml:"refresh_interval" koanf:"refresh_interval"`
}

// ClassifierConfig tunes intent classification.
type ClassifierConfig struct {
	MinScore             float64       `yaml:"min_score" koanf:"min_score"`
	MaxIntents           int           `yaml:"max_intents" koanf:"max_intents"`
	BatchSize            int           `yaml:"batch_size" koanf:"batch_size"`
	MaxConcurrentBatches int           `yaml:"max_concurrent_batches" koanf:"max_concurrent_batches"`
	Timeout              time.Duration `yaml:"timeout" koanf:"timeout"`
	PrefilterThreshold   int           `yaml:"prefilter_threshold" koanf:"prefilter_threshold"`
}

// ChannelsConfig tunes the channel fan-out.
type ChannelsConfig struct {
	PoolSize             int           `yaml:"pool_size" koanf:"pool_size"`
	Timeout              time.Duration `yaml:"timeout" koanf:"timeout"`
	MinSearchTopK        int           `yaml:"min_search_top_k" koanf:"min_search_top_k"`
	SearchTopKMultiplier int           `yaml:"search_top_k_multiplier" koanf:"search_top_k_multiplier"`
}

// PostProcessConfig tunes the optional post-processing stages.
type PostProcessConfig struct {
	MarginFilter          bool          `yaml:"margin_filter" koanf:"margin_filter"`
	MarginRatio           float64       `yaml:"margin_ratio" koanf:"margin_ratio"`
	MarginOrder           int           `yaml:"margin_order" koanf:"margin_order"`
	RerankLimit           bool          `yaml:"rerank_limit" koanf:"rerank_limit"`
	RerankLimitMultiplier int           `yaml:"rerank_limit_multiplier" koanf:"rerank_limit_multiplier"`
	RerankTimeout         time.Duration `yaml:"rerank_timeout" koanf:"rerank_timeout"`
}

// RetrievalConfig sets request defaults.
type RetrievalConfig struct {
	DefaultTopK     int `yaml:"default_top_k" koanf:"default_top_k"`
	MaxSubQuestions int `yaml:"max_sub_questions" koanf:"max_sub_questions"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		DataDir:  "ragrouter-data",
		LogLevel: "info",
		Vectors: VectorConfig{
			Backend:           VectorBackendChromem,
			Path:              "ragrouter-data/vectors",
			DefaultCollection: "kb_default",
		},
		AI: AIConfig{
			Host:            aiDefaults.ClassifierHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			ClassifierModel: aiDefaults.ClassifierModel,
			Token:           aiDefaults.Token,
			MaxAttempts:     aiDefaults.MaxAttempts,
		},
		Classifier: ClassifierConfig{
			MinScore:             0.35,
			MaxIntents:           3,
			BatchSize:            20,
			MaxConcurrentBatches: 4,
			Timeout:              5 * time.Second,
			PrefilterThreshold:   40,
		},
		Channels: ChannelsConfig{
			PoolSize:             64,
			Timeout:              3 * time.Second,
			MinSearchTopK:        20,
			SearchTopKMultiplier: 3,
		},
		PostProcess: PostProcessConfig{
			MarginRatio:           0.75,
			MarginOrder:           5,
			RerankLimitMultiplier: 2,
			RerankTimeout:         10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:     5,
			MaxSubQuestions: 3,
		},
	}
}

// Load reads configuration from the given YAML file, then overlays environment
// overrides. A missing file is not an error; defaults and env apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// envKey maps RAGROUTER_CLASSIFIER__MIN_SCORE to classifier.min_score.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Vectors.Backend {
	case VectorBackendChromem, VectorBackendBadger:
	default:
		errs = append(errs, fmt.Errorf("invalid vectors.backend %q: must be chromem or badger", c.Vectors.Backend))
	}
	check(c.Vectors.DefaultCollection != "", "vectors.default_collection is required")
	check(c.Catalog.RefreshInterval >= 0, "catalog.refresh_interval must be non-negative")

	check(c.Classifier.MinScore >= 0 && c.Classifier.MinScore <= 1, "classifier.min_score must be in [0,1]")
	check(c.Classifier.MaxIntents >= 1, "classifier.max_intents must be positive")
	check(c.Classifier.BatchSize >= 1, "classifier.batch_size must be positive")
	check(c.Classifier.MaxConcurrentBatches >= 1, "classifier.max_concurrent_batches must be positive")
	check(c.Classifier.Timeout > 0, "classifier.timeout must be positive")
	check(c.Classifier.PrefilterThreshold >= 0, "classifier.prefilter_threshold must be non-negative")

	check(c.Channels.PoolSize >= 1, "channels.pool_size must be positive")
	check(c.Channels.Timeout > 0, "channels.timeout must be positive")
	check(c.Channels.MinSearchTopK >= 1, "channels.min_search_top_k must be positive")
	check(c.Channels.SearchTopKMultiplier >= 1, "channels.search_top_k_multiplier must be positive")

	check(c.PostProcess.MarginRatio > 0 && c.PostProcess.MarginRatio <= 1, "postprocess.margin_ratio must be in (0,1]")
	check(c.PostProcess.RerankLimitMultiplier >= 1, "postprocess.rerank_limit_multiplier must be positive")
	check(c.PostProcess.RerankTimeout > 0, "postprocess.rerank_timeout must be positive")

	check(c.Retrieval.DefaultTopK >= 1, "retrieval.default_top_k must be positive")
	check(c.Retrieval.MaxSubQuestions >= 0, "retrieval.max_sub_questions must be non-negative")

	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AIConfig converts the ai section into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithHost(c.AI.Host),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithClassifierModel(c.AI.ClassifierModel),
		ai.WithRerankModel(c.AI.RerankModel),
		ai.WithToken(c.AI.Token),
		ai.WithMaxAttempts(c.AI.MaxAttempts),
	}
	if c.AI.EmbeddingHost != "" {
		opts = append(opts, ai.WithEmbeddingHost(c.AI.EmbeddingHost))
	}
	if c.AI.RerankHost != "" {
		opts = append(opts, ai.WithRerankHost(c.AI.RerankHost))
	}
	cfg := ai.NewConfig(opts...)
	cfg.Normalize()
	return cfg
}
