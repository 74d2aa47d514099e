// Package app assembles the query pipeline and its backing stores from a
// loaded configuration. Both the server and the operator CLI build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"wapi-nlq/internal/common/config"
	"wapi-nlq/internal/common/database"
	nlqhttp "wapi-nlq/internal/common/http"
	"wapi-nlq/internal/common/logger"
	"wapi-nlq/internal/common/observability"
	"wapi-nlq/internal/nlq/audit"
	"wapi-nlq/internal/nlq/catalog"
	"wapi-nlq/internal/nlq/entities"
	"wapi-nlq/internal/nlq/escalation"
	"wapi-nlq/internal/nlq/executor"
	"wapi-nlq/internal/nlq/intent"
	"wapi-nlq/internal/nlq/pipeline"

	"github.com/redis/go-redis/v9"
)

// Options tune Build for the caller. The zero value connects to every
// configured store once with no retries and records no audit history
// unless the config enables it.
type Options struct {
	Observability *observability.Observability
	// HTTPClient overrides the client shared by the executor, the live
	// catalog loader and the chat backends.
	HTTPClient *nlqhttp.Client
	// DisableAudit skips the audit sinks even when configured.
	DisableAudit bool
	// Strategies replaces the configured classification strategies.
	Strategies []intent.Strategy
	Retries    int
	RetryDelay time.Duration
}

// App owns the assembled pipeline and every connection opened for it.
type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Executor *executor.Executor

	obs     *observability.Observability
	closers []func() error
	logger  logger.Logger
}

// Build wires extractor, classifier, escalation, executor and audit sinks
// into a pipeline. Store connections that fail are logged and their
// feature left off; only an unusable classifier fails the build.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		obs:    opts.Observability,
		logger: log.With(map[string]interface{}{"component": "app"}),
	}

	client := opts.HTTPClient
	if client == nil {
		client = nlqhttp.NewClient(config.GetDuration(cfg.Grid.Timeout))
	}
	settings := cfg.RuntimeSettings()

	cat := catalog.Load(ctx, cfg.Catalog, cfg.Grid, catalog.NewLiveLoader(client, log), log)
	a.logger.Info("Intent catalog loaded", map[string]interface{}{
		"source":  cat.Source(),
		"intents": cat.Len(),
	})

	strategies := opts.Strategies
	if strategies == nil {
		strategies = a.strategies(ctx, cfg)
	}
	classifier, err := intent.NewRegistry(log, strategies...).Select(ctx, cat)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.LLM.Enabled() && cfg.LLM.CacheTTL > 0 && cfg.Database.Redis.Address != "" {
		err := retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(ctx, cfg.Database.Redis)
			return err
		}, opts.Retries, opts.RetryDelay, a.logger, "Redis connection")
		if err != nil {
			a.logger.Warn("Escalation cache disabled", map[string]interface{}{"error": err.Error()})
			rdb = nil
		} else {
			a.closers = append(a.closers, rdb.Close)
		}
	}

	llmClient := client
	if opts.HTTPClient == nil {
		llmClient = nlqhttp.NewClient(config.GetDuration(cfg.LLM.Timeout))
	}
	escalator, err := escalation.NewFromConfig(ctx, cfg.LLM, llmClient, rdb, log)
	if err != nil {
		a.logger.Warn("Escalation disabled", map[string]interface{}{
			"provider": cfg.LLM.Provider,
			"error":    err.Error(),
		})
		escalator = nil
	}

	var recorder *audit.Recorder
	if !opts.DisableAudit {
		recorder = audit.NewRecorder(log, a.auditSinks(ctx, cfg, opts)...)
	}

	a.Executor = executor.New(client, log)
	a.Pipeline, err = pipeline.New(settings, cat, pipeline.Deps{
		Extractor:     entities.NewPatternExtractor(),
		Classifier:    classifier,
		Escalator:     escalator,
		Executor:      a.Executor,
		Recorder:      recorder,
		Observability: opts.Observability,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.logger.Info("Pipeline ready", map[string]interface{}{
		"strategy":   classifier.Strategy(),
		"escalation": escalator != nil,
		"auditSinks": recorder.Len(),
	})
	return a, nil
}

// strategies lists the configured classification strategies, most
// capable first.
func (a *App) strategies(ctx context.Context, cfg *config.Config) []intent.Strategy {
	var out []intent.Strategy
	if zs := cfg.Classifier.ZeroShot; zs.Enabled {
		embedder, err := intent.NewGenAIEmbedder(ctx, zs.APIKey, zs.Model)
		if err != nil {
			a.logger.Warn("Zero-shot classifier not configured", map[string]interface{}{"error": err.Error()})
		} else {
			out = append(out, intent.NewZeroShotStrategy(embedder, zs.Temperature))
		}
	}
	return append(out, intent.NewKeywordStrategy(cfg.Pipeline.DeriveObjectNoun))
}

func (a *App) auditSinks(ctx context.Context, cfg *config.Config, opts Options) []audit.Sink {
	var sinks []audit.Sink

	if cfg.Audit.Postgres.Enabled {
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(ctx, cfg.Database.Postgres)
			return err
		}, opts.Retries, opts.RetryDelay, a.logger, "PostgreSQL connection")
		if err == nil {
			a.closers = append(a.closers, pg.Close)
			var sink *audit.PostgresSink
			if sink, err = audit.NewPostgresSink(pg.DB, cfg.Audit.Postgres.Table); err == nil {
				if err = sink.EnsureSchema(ctx); err == nil {
					sinks = append(sinks, sink)
				}
			}
		}
		if err != nil {
			a.logger.Warn("Postgres audit sink disabled", map[string]interface{}{"error": err.Error()})
		}
	}

	if cfg.Audit.Elasticsearch.Enabled {
		var es *database.ElasticsearchClient
		err := retryWithBackoff(func() error {
			var err error
			if es, err = database.NewElasticsearch(cfg.Database.Elasticsearch); err != nil {
				return err
			}
			return es.Ping(ctx)
		}, opts.Retries, opts.RetryDelay, a.logger, "Elasticsearch connection")
		if err == nil {
			sink := audit.NewElasticsearchSink(es.Client, cfg.Audit.Elasticsearch.Index)
			if err = es.EnsureIndex(ctx, sink.Index(), audit.IndexMapping); err == nil {
				sinks = append(sinks, sink)
			}
		}
		if err != nil {
			a.logger.Warn("Elasticsearch audit sink disabled", map[string]interface{}{"error": err.Error()})
		}
	}

	return sinks
}

// Reload re-reads the catalog and swaps it and the runtime settings into
// the running pipeline. The classification strategy is kept.
func (a *App) Reload(ctx context.Context, cfg *config.Config) {
	cat := catalog.Load(ctx, cfg.Catalog, cfg.Grid, catalog.NewLiveLoader(
		nlqhttp.NewClient(config.GetDuration(cfg.Grid.Timeout)), a.logger), a.logger)
	a.Pipeline.UpdateSettings(cfg.RuntimeSettings())
	a.Pipeline.UpdateCatalog(cat)
	a.Config = cfg
	a.logger.Info("Configuration reloaded", map[string]interface{}{
		"catalogSource": cat.Source(),
		"intents":       cat.Len(),
	})
}

// Ping checks the grid the pipeline currently targets.
func (a *App) Ping(ctx context.Context) executor.PingResult {
	return a.Executor.Ping(ctx, a.Pipeline.Settings().Grid)
}

// Close releases every store connection. Safe to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing connection", map[string]interface{}{"error": err.Error()})
		}
	}
	a.closers = nil
	a.obs.Shutdown()
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
