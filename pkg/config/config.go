// Package config loads the patentrag configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/patentrag/engine/confidence"
)

// Config is the complete runtime configuration.
type Config struct {
	Ollama      OllamaConfig      `yaml:"ollama"`
	Qdrant      QdrantConfig      `yaml:"qdrant"`
	Terminology TerminologyConfig `yaml:"terminology"`
	NATS        NATSConfig        `yaml:"nats"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Terms       TermsConfig       `yaml:"terms"`
	Prompt      PromptConfig      `yaml:"prompt"`
	Invoke      InvokeConfig      `yaml:"invoke"`
	Confidence  ConfidenceConfig  `yaml:"confidence"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// OllamaConfig points at the embedding and chat models.
type OllamaConfig struct {
	URL        string        `yaml:"url"`
	EmbedModel string        `yaml:"embed_model"`
	ChatModel  string        `yaml:"chat_model"`
	Seed       int           `yaml:"seed"`
	Timeout    time.Duration `yaml:"timeout"`
	// EmbedConcurrency bounds parallel embedding requests during indexing.
	EmbedConcurrency int `yaml:"embed_concurrency"`
}

// QdrantConfig locates the translation-example collection.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	VectorSize uint64 `yaml:"vector_size"`
}

// TerminologyConfig selects the terminology backend.
type TerminologyConfig struct {
	// Backend is one of sqlite, neo4j, memory.
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	Neo4jURL      string `yaml:"neo4j_url"`
	Neo4jUser     string `yaml:"neo4j_user"`
	Neo4jPassword string `yaml:"neo4j_password"`
}

// NATSConfig configures the event sink and worker subjects.
type NATSConfig struct {
	URL           string `yaml:"url"`
	EventSubject  string `yaml:"event_subject"`
	WorkerSubject string `yaml:"worker_subject"`
}

type RetrievalConfig struct {
	K               int     `yaml:"k"`
	MinSimilarity   float32 `yaml:"min_similarity"`
	CandidateFactor int     `yaml:"candidate_factor"`
}

type TermsConfig struct {
	MaxTerms int `yaml:"max_terms"`
}

type PromptConfig struct {
	BudgetChars     int `yaml:"budget_chars"`
	MaxExampleChars int `yaml:"max_example_chars"`
}

// InvokeConfig is the bounded retry and pacing policy for model calls.
type InvokeConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialWait   time.Duration `yaml:"initial_wait"`
	MaxWait       time.Duration `yaml:"max_wait"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	StabilityRuns int           `yaml:"stability_runs"`
}

type ConfidenceConfig struct {
	RetrievalWeight  float64 `yaml:"retrieval_weight"`
	CoverageWeight   float64 `yaml:"coverage_weight"`
	StabilityWeight  float64 `yaml:"stability_weight"`
	NeutralStability float64 `yaml:"neutral_stability"`
	DegradedPenalty  float64 `yaml:"degraded_penalty"`
}

// Weights converts the section into scorer weights.
func (c ConfidenceConfig) Weights() confidence.Weights {
	return confidence.Weights{
		Retrieval:        c.RetrievalWeight,
		Coverage:         c.CoverageWeight,
		Stability:        c.StabilityWeight,
		NeutralStability: c.NeutralStability,
		DegradedPenalty:  c.DegradedPenalty,
	}
}

type PipelineConfig struct {
	Workers int `yaml:"workers"`
}

type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the listener.
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:              "http://localhost:11434",
			EmbedModel:       "nomic-embed-text",
			ChatModel:        "qwen2.5:14b",
			Seed:             42,
			Timeout:          5 * time.Minute,
			EmbedConcurrency: 4,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "patent_translations",
			VectorSize: 768,
		},
		Terminology: TerminologyConfig{
			Backend:    "sqlite",
			SQLitePath: "terminology.db",
			Neo4jURL:   "neo4j://localhost:7687",
			Neo4jUser:  "neo4j",
		},
		NATS: NATSConfig{
			EventSubject:  "patentrag.sections",
			WorkerSubject: "patentrag.translate",
		},
		Retrieval: RetrievalConfig{K: 3, MinSimilarity: 0.7, CandidateFactor: 4},
		Terms:     TermsConfig{MaxTerms: 20},
		Prompt:    PromptConfig{BudgetChars: 12000, MaxExampleChars: 200},
		Invoke: InvokeConfig{
			MaxAttempts:   3,
			InitialWait:   500 * time.Millisecond,
			MaxWait:       5 * time.Second,
			RatePerSecond: 2,
			Burst:         1,
		},
		Confidence: ConfidenceConfig{
			RetrievalWeight:  0.4,
			CoverageWeight:   0.4,
			StabilityWeight:  0.2,
			NeutralStability: 0.5,
			DegradedPenalty:  0.1,
		},
		Pipeline: PipelineConfig{Workers: 4},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile reads YAML from path on top of DefaultConfig.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load returns DefaultConfig when path is empty, the file contents otherwise,
// with environment overrides applied and the result validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides connection settings from the environment. lookup is
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	envOr := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	envOr("OLLAMA_URL", &c.Ollama.URL)
	envOr("OLLAMA_EMBED_MODEL", &c.Ollama.EmbedModel)
	envOr("OLLAMA_CHAT_MODEL", &c.Ollama.ChatModel)
	envOr("QDRANT_HOST", &c.Qdrant.Host)
	envOr("QDRANT_COLLECTION", &c.Qdrant.Collection)
	envOr("NATS_URL", &c.NATS.URL)
	envOr("TERMINOLOGY_BACKEND", &c.Terminology.Backend)
	envOr("TERMINOLOGY_DB", &c.Terminology.SQLitePath)
	envOr("NEO4J_URL", &c.Terminology.Neo4jURL)
	envOr("NEO4J_USER", &c.Terminology.Neo4jUser)
	envOr("NEO4J_PASS", &c.Terminology.Neo4jPassword)
	envOr("METRICS_ADDR", &c.Metrics.Addr)
	envOr("LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("QDRANT_PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Qdrant.Port = p
		}
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Terminology.Backend {
	case "sqlite", "neo4j", "memory":
	default:
		return fmt.Errorf("config: terminology.backend %q must be sqlite, neo4j or memory", c.Terminology.Backend)
	}
	if c.Ollama.URL == "" {
		return fmt.Errorf("config: ollama.url is required")
	}
	if c.Ollama.EmbedConcurrency < 0 {
		return fmt.Errorf("config: ollama.embed_concurrency must be >= 0")
	}
	if c.Retrieval.K < 0 {
		return fmt.Errorf("config: retrieval.k must be >= 0")
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("config: retrieval.min_similarity must be within [-1, 1]")
	}
	if c.Prompt.BudgetChars <= 0 {
		return fmt.Errorf("config: prompt.budget_chars must be > 0")
	}
	if c.Invoke.MaxAttempts <= 0 {
		return fmt.Errorf("config: invoke.max_attempts must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("config: pipeline.workers must be > 0")
	}
	if err := c.Confidence.Weights().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
