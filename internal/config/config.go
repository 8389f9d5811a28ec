// Package config loads the engine's process-start configuration: one
// typed Config struct per component, layered file (YAML) + environment
// variable overrides, the teacher's SetDefaults()/Validate() per-section
// convention.
//
// Grounded on _examples/kadirpekel-hector/pkg/config/koanf_loader.go (the
// koanf.Load(file.Provider(...), yaml.Parser()) + env-overlay pattern) and
// pkg/config/rag.go (per-section SetDefaults/Validate). The teacher's
// consul/etcd/zookeeper providers and hot-reload watcher are dropped: this
// engine restarts on config change (no OnChange callback, no Watch), so
// only the file + env layers survive — see DESIGN.md for the justification.
package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// VectorStoreConfig selects and configures the dense vector store.
type VectorStoreConfig struct {
	Type       string `yaml:"type"` // "qdrant" or "chroma"
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "qdrant"
	}
	if c.Collection == "" {
		c.Collection = "wiki_chunks"
	}
	if c.Type == "qdrant" && c.Port == 0 {
		c.Port = 6333
	}
}

func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "qdrant", "chroma":
	default:
		return fmt.Errorf("invalid vector store type %q (valid: qdrant, chroma)", c.Type)
	}
	if c.Host == "" {
		return fmt.Errorf("host is required for the %s vector store", c.Type)
	}
	return nil
}

// EmbedderConfig selects and configures the dense embedding provider.
type EmbedderConfig struct {
	Type      string        `yaml:"type"` // "ollama" or "openai"
	Host      string        `yaml:"host,omitempty"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	APIKey    string        `yaml:"api_key,omitempty"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Model == "" {
		c.Model = "nomic-embed-text"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *EmbedderConfig) Validate() error {
	switch c.Type {
	case "ollama", "openai":
	default:
		return fmt.Errorf("invalid embedder type %q (valid: ollama, openai)", c.Type)
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for the openai embedder")
	}
	return nil
}

// RewriterConfig selects and configures the optional LLM query rewriter.
// Enabled defaults to false: rewriting is an enhancement (§4.2), and the
// pipeline works without it.
type RewriterConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Type        string        `yaml:"type,omitempty"` // "ollama" or "openai"
	Host        string        `yaml:"host,omitempty"`
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	Variations  int           `yaml:"variations,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

func (c *RewriterConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.Variations == 0 {
		c.Variations = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

func (c *RewriterConfig) Validate(embeddingModel string) error {
	if !c.Enabled {
		return nil
	}
	switch c.Type {
	case "ollama", "openai":
	default:
		return fmt.Errorf("invalid rewriter type %q (valid: ollama, openai)", c.Type)
	}
	if c.Type == "openai" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for the openai rewriter")
	}
	if c.Model != "" && c.Model == embeddingModel {
		return fmt.Errorf("rewriter model %q must differ from the embedding model", c.Model)
	}
	return nil
}

// CrossEncoderConfig configures the optional HTTP cross-encoder reranker.
type CrossEncoderConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

func (c *CrossEncoderConfig) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

func (c *CrossEncoderConfig) Validate() error {
	if c.Enabled && c.BaseURL == "" {
		return fmt.Errorf("base_url is required when the cross-encoder reranker is enabled")
	}
	return nil
}

// PageStoreConfig configures the Postgres page/chunk store.
type PageStoreConfig struct {
	DSN string `yaml:"dsn"`
}

func (c *PageStoreConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("dsn is required for the page store")
	}
	return nil
}

// CacheConfig sizes/TTLs the four §4.11 caches.
type CacheConfig struct {
	EmbeddingSize  int           `yaml:"embedding_size,omitempty"`
	RewriteTTL     time.Duration `yaml:"rewrite_ttl,omitempty"`
	PageSize       int           `yaml:"page_size,omitempty"`
	SemanticLogCap int           `yaml:"semantic_log_cap,omitempty"`
}

func (c *CacheConfig) SetDefaults() {
	if c.EmbeddingSize <= 0 {
		c.EmbeddingSize = 10000
	}
	if c.RewriteTTL <= 0 {
		c.RewriteTTL = time.Hour
	}
	if c.PageSize <= 0 {
		c.PageSize = 5000
	}
	if c.SemanticLogCap <= 0 {
		c.SemanticLogCap = 1000
	}
}

// ContextExpanderConfig configures the §4.8 context expander.
type ContextExpanderConfig struct {
	Mode        string `yaml:"mode,omitempty"` // "bidirectional", "related", "all" or "none"
	WindowSize  int    `yaml:"window_size,omitempty"`
	RelatedTopR int    `yaml:"related_top_r,omitempty"`
}

func (c *ContextExpanderConfig) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "bidirectional"
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 2
	}
	if c.RelatedTopR <= 0 {
		c.RelatedTopR = 3
	}
}

// GroundingConfig configures the optional §4.9 grounding check.
type GroundingConfig struct {
	Enabled             bool    `yaml:"enabled"`
	SimilarityThreshold float64 `yaml:"similarity_threshold,omitempty"`
	KeywordThreshold    float64 `yaml:"keyword_threshold,omitempty"`
}

func (c *GroundingConfig) SetDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.5
	}
	if c.KeywordThreshold == 0 {
		c.KeywordThreshold = 0.3
	}
}

// RetryConfig holds backoff settings. It is loaded and defaulted, but no
// component reads it: the embedding providers use retry.DefaultConfig().
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries,omitempty"`
	BaseDelay  time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay   time.Duration `yaml:"max_delay,omitempty"`
}

func (c *RetryConfig) SetDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 250 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsEnabled bool    `yaml:"metrics_enabled"`
	TracingEnabled bool    `yaml:"tracing_enabled"`
	TracingType    string  `yaml:"tracing_exporter,omitempty"` // "otlp" or "stdout"
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty"`
	SamplingRate   float64 `yaml:"sampling_rate,omitempty"`
	LogLevel       string  `yaml:"log_level,omitempty"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = 1.0
	}
}

// Config is the top-level process configuration.
type Config struct {
	VectorStore    VectorStoreConfig    `yaml:"vector_store"`
	SparseIndexDir string               `yaml:"sparse_index_dir,omitempty"`
	PageStore      PageStoreConfig      `yaml:"page_store"`
	Embedder       EmbedderConfig       `yaml:"embedder"`
	Rewriter       RewriterConfig       `yaml:"rewriter"`
	CrossEncoder   CrossEncoderConfig   `yaml:"cross_encoder"`
	Cache          CacheConfig          `yaml:"cache"`
	ContextExpander ContextExpanderConfig `yaml:"context_expander"`
	Grounding      GroundingConfig      `yaml:"grounding"`
	Retry          RetryConfig          `yaml:"retry"`
	Server         ServerConfig         `yaml:"server"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// SetDefaults fills in every section's defaults.
func (c *Config) SetDefaults() {
	c.VectorStore.SetDefaults()
	c.Embedder.SetDefaults()
	c.Rewriter.SetDefaults()
	c.CrossEncoder.SetDefaults()
	c.Cache.SetDefaults()
	c.ContextExpander.SetDefaults()
	c.Grounding.SetDefaults()
	c.Retry.SetDefaults()
	c.Server.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section, short-circuiting on the first error.
func (c *Config) Validate() error {
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if err := c.PageStore.Validate(); err != nil {
		return fmt.Errorf("page_store: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Rewriter.Validate(c.Embedder.Model); err != nil {
		return fmt.Errorf("rewriter: %w", err)
	}
	if err := c.CrossEncoder.Validate(); err != nil {
		return fmt.Errorf("cross_encoder: %w", err)
	}
	return nil
}

// Load layers a YAML file (if path is non-empty) under environment
// variables prefixed WIKIQ_ (WIKIQ_EMBEDDER__MODEL -> embedder.model,
// double underscore separates nesting), matching the teacher's
// file-then-env-overlay order so env always wins.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("WIKIQ_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config has structural errors: %w", err)
	}
	return cfg, nil
}
