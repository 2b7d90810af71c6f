package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/patentrag/engine/pipeline"
	"github.com/WessleyAI/patentrag/engine/prompt"
	"github.com/WessleyAI/patentrag/engine/retrieval"
	"github.com/WessleyAI/patentrag/engine/semantic"
	"github.com/WessleyAI/patentrag/engine/terminology"
	"github.com/WessleyAI/patentrag/engine/translate"
	"github.com/WessleyAI/patentrag/pkg/config"
	"github.com/WessleyAI/patentrag/pkg/fn"
	"github.com/WessleyAI/patentrag/pkg/metrics"
	"github.com/WessleyAI/patentrag/pkg/ollama"
	"github.com/WessleyAI/patentrag/pkg/resilience"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Registry
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(a.logger)
	a.metrics = metrics.New()
	return nil
}

func newLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// serveMetrics starts the metrics listener when an address is configured.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Addr, a.logger); err != nil {
			a.logger.Error("metrics listener", "err", err)
		}
	}()
}

// termStore is a terminology backend that can be read and written.
type termStore interface {
	terminology.Store
	terminology.Writer
}

func (a *app) openTerms(ctx context.Context) (termStore, func(), error) {
	c := a.cfg.Terminology
	switch c.Backend {
	case "sqlite":
		s, err := terminology.OpenSQLite(c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(c.Neo4jURL, neo4j.BasicAuth(c.Neo4jUser, c.Neo4jPassword, ""))
		if err != nil {
			return nil, nil, fmt.Errorf("neo4j driver: %w", err)
		}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			driver.Close(ctx)
			return nil, nil, fmt.Errorf("neo4j connect: %w", err)
		}
		return terminology.NewNeo4jStore(driver), func() { driver.Close(context.Background()) }, nil
	default:
		return terminology.NewMemoryStore(), func() {}, nil
	}
}

func (a *app) openIndex() (*semantic.VectorStore, error) {
	addr := net.JoinHostPort(a.cfg.Qdrant.Host, strconv.Itoa(a.cfg.Qdrant.Port))
	vs, err := semantic.New(addr, a.cfg.Qdrant.Collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return vs, nil
}

// connectNATS returns nil when no NATS URL is configured.
func (a *app) connectNATS() (*nats.Conn, error) {
	if a.cfg.NATS.URL == "" {
		return nil, nil
	}
	nc, err := nats.Connect(a.cfg.NATS.URL, nats.Name("patentrag"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

func (a *app) breaker(name string) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerOpts{
		Name: name,
		OnStateChange: func(name string, from, to resilience.State) {
			a.metrics.BreakerState(name, int(to))
			a.logger.Warn("breaker state change", "name", name, "from", from, "to", to)
		},
		IsFailure: translate.Retryable,
	})
}

func (a *app) embedClient() *ollama.EmbedClient {
	c := ollama.NewEmbedClient(a.cfg.Ollama.URL, a.cfg.Ollama.EmbedModel, a.cfg.Ollama.Timeout)
	c.Concurrency = a.cfg.Ollama.EmbedConcurrency
	return c
}

// orchestrator wires the translation pipeline against live services.
func (a *app) orchestrator(index semantic.Index, events pipeline.EventSink) *pipeline.Orchestrator {
	c := a.cfg
	embed := a.embedClient()
	chat := ollama.NewChatClient(c.Ollama.URL, c.Ollama.ChatModel, c.Ollama.Seed, c.Ollama.Timeout)

	inv := translate.New(chat, translate.Policy{
		Retry: fn.RetryOpts{
			MaxAttempts: c.Invoke.MaxAttempts,
			InitialWait: c.Invoke.InitialWait,
			MaxWait:     c.Invoke.MaxWait,
		},
		RatePerSecond: c.Invoke.RatePerSecond,
		Burst:         c.Invoke.Burst,
		StabilityRuns: c.Invoke.StabilityRuns,
	}, translate.WithBreaker(a.breaker("llm")), translate.WithMetrics(a.metrics), translate.WithLogger(a.logger))

	return pipeline.New(pipeline.Deps{
		Embedder:  embed,
		Retriever: retrieval.New(index, a.breaker("index"), c.Retrieval.CandidateFactor, a.logger),
		Matcher:   terminology.NewMatcher(c.Terms.MaxTerms),
		Assembler: prompt.NewAssembler(c.Prompt.MaxExampleChars),
		Invoker:   inv,
		Preflight: map[string]pipeline.Pinger{"embedding": embed, "llm": chat},
		Events:    events,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}, pipeline.Options{
		K:             c.Retrieval.K,
		MinSimilarity: c.Retrieval.MinSimilarity,
		Budget:        c.Prompt.BudgetChars,
		Workers:       c.Pipeline.Workers,
		Weights:       c.Confidence.Weights(),
	})
}
