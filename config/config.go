package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/toolrouter/embedding"
	"github.com/jonwraymond/toolrouter/registry"
	"github.com/jonwraymond/toolrouter/retry"
	"github.com/jonwraymond/toolrouter/transport"
	"github.com/jonwraymond/toolrouter/vectorstore"
)

// ErrInvalid is returned by Validate and Load for unusable configurations.
var ErrInvalid = errors.New("invalid configuration")

// Server transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Config is the complete toolrouter configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Registry  RegistryConfig  `yaml:"registry"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Retry     retry.Policy    `yaml:"retry"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the hosting MCP server.
type ServerConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Transport string `yaml:"transport"` // "stdio", "sse" or "http"
	Addr      string `yaml:"addr"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"` // "openai" or "hash"
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

// StoreConfig selects the vector store and the collection holding the
// service descriptors.
type StoreConfig struct {
	vectorstore.Config `yaml:",inline"`
	Collection         string `yaml:"collection"`
}

// RegistryConfig sizes the resolution probes.
type RegistryConfig struct {
	NarrowProbe int `yaml:"narrow_probe"`
	BroadProbe  int `yaml:"broad_probe"`
}

// DispatchConfig configures transport selection and remote calls.
type DispatchConfig struct {
	StreamMarkers    []string          `yaml:"stream_markers"`
	StreamingEnabled bool              `yaml:"streaming_enabled"`
	HTTPTimeout      time.Duration     `yaml:"http_timeout"`
	CallTimeout      time.Duration     `yaml:"call_timeout"`
	Headers          map[string]string `yaml:"headers"`
}

// SearchConfig configures the operation keyword index.
type SearchConfig struct {
	Enabled bool `yaml:"enabled"`
	// IndexPath persists the index. Empty keeps it in memory.
	IndexPath string `yaml:"index_path"`
	// HybridAlpha weighs keyword matches against service similarity when
	// ranking operations; 1 means keywords only.
	HybridAlpha float64 `yaml:"hybrid_alpha"`
}

// DefaultConfig returns a configuration that runs against DashScope with an
// in-memory chromem store, serving MCP over stdio.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "mcp-router",
			Version:   "v1.0.0",
			Transport: TransportStdio,
			Addr:      ":9000",
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOpenAI,
			BaseURL:   embedding.DefaultBaseURL,
			Model:     embedding.DefaultModel,
			Dimension: embedding.DefaultDimension,
			Timeout:   embedding.DefaultTimeout,
		},
		Store: StoreConfig{
			Config: vectorstore.Config{
				Type: vectorstore.TypeChromem,
				Qdrant: vectorstore.QdrantConfig{
					Host: "localhost",
					Port: 6334,
				},
				Bolt: vectorstore.BoltConfig{
					Path:    "toolrouter.db",
					Timeout: time.Second,
				},
			},
			Collection: registry.DefaultCollection,
		},
		Registry: RegistryConfig{
			NarrowProbe: registry.DefaultNarrowProbe,
			BroadProbe:  registry.DefaultBroadProbe,
		},
		Dispatch: DispatchConfig{
			StreamMarkers:    append([]string(nil), transport.DefaultStreamMarkers...),
			StreamingEnabled: true,
			HTTPTimeout:      transport.DefaultHTTPTimeout,
			CallTimeout:      2 * time.Minute,
		},
		Retry:   retry.DefaultPolicy(),
		Search:  SearchConfig{Enabled: true, HybridAlpha: 0.5},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), .env files and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(path); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory and, when configPath is
// set, from the config file's directory. Variables already present in the
// environment are not overwritten. Missing files are ignored.
func LoadDotEnv(configPath string) error {
	paths := []string{".env"}
	if configPath != "" {
		if dir := filepath.Dir(configPath); dir != "." {
			paths = append(paths, filepath.Join(dir, ".env"))
		}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables visible through
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("OPENAI_BASE_URL"); ok {
		c.Embedding.BaseURL = v
	}
	for _, key := range []string{"DASHSCOPE_API_KEY", "OPENAI_API_KEY"} {
		if v, ok := get(key); ok {
			c.Embedding.APIKey = v
			break
		}
	}
	if v, ok := get("EMBEDDING_MODEL"); ok {
		c.Embedding.Model = v
	}
	if v, ok := get("EMBEDDING_PROVIDER"); ok {
		c.Embedding.Provider = v
	}
	if v, ok := get("EMBEDDING_DIMENSION"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: EMBEDDING_DIMENSION=%q: %v", ErrInvalid, v, err)
		}
		c.Embedding.Dimension = n
	}
	if v, ok := get("COLLECTION_NAME"); ok {
		c.Store.Collection = v
	}
	if v, ok := get("VECTOR_STORE"); ok {
		c.Store.Type = vectorstore.Type(v)
	}
	if v, ok := get("QDRANT_HOST"); ok {
		c.Store.Qdrant.Host = v
	}
	if v, ok := get("QDRANT_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: QDRANT_PORT=%q: %v", ErrInvalid, v, err)
		}
		c.Store.Qdrant.Port = n
	}
	if v, ok := get("QDRANT_API_KEY"); ok {
		c.Store.Qdrant.APIKey = v
	}
	if v, ok := get("TOOLROUTER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := get("TOOLROUTER_TRANSPORT"); ok {
		c.Server.Transport = v
	}
	return nil
}

// Validate reports the first problem that would prevent the router from
// starting.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportSSE, TransportHTTP:
	default:
		return fmt.Errorf("%w: unknown server transport %q", ErrInvalid, c.Server.Transport)
	}
	if c.Server.Transport != TransportStdio && c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required for %s", ErrInvalid, c.Server.Transport)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderHash:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalid, c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: embedding.dimension must be positive, got %d", ErrInvalid, c.Embedding.Dimension)
	}

	if !c.Store.Type.Valid() {
		return fmt.Errorf("%w: unknown vector store type %q", ErrInvalid, c.Store.Type)
	}
	if strings.TrimSpace(c.Store.Collection) == "" {
		return fmt.Errorf("%w: store.collection is required", ErrInvalid)
	}

	if c.Registry.NarrowProbe <= 0 || c.Registry.BroadProbe <= 0 {
		return fmt.Errorf("%w: probe sizes must be positive", ErrInvalid)
	}
	if c.Registry.BroadProbe < c.Registry.NarrowProbe {
		return fmt.Errorf("%w: registry.broad_probe (%d) is smaller than registry.narrow_probe (%d)",
			ErrInvalid, c.Registry.BroadProbe, c.Registry.NarrowProbe)
	}

	if c.Search.HybridAlpha < 0 || c.Search.HybridAlpha > 1 {
		return fmt.Errorf("%w: search.hybrid_alpha must be within [0, 1]", ErrInvalid)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("%w: retry.max_attempts must not be negative", ErrInvalid)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown logging format %q", ErrInvalid, c.Logging.Format)
	}
	return nil
}
