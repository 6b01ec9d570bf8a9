package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/internal/logger"
	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/deps"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/harun/toolgate/pkg/nutrition"
	"github.com/harun/toolgate/pkg/toolregistry"
	"github.com/rs/zerolog"
)

// app is the wired runtime shared by the commands
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	logger     zerolog.Logger
	registry   *toolregistry.Registry
	resolver   *deps.Resolver
	dispatcher *dispatch.Dispatcher
	metrics    *metrics.Metrics
	audit      *observability.AuditLogger

	storeMu sync.Mutex
	store   *nutrition.SQLiteStore
}

// newApp loads the config and wires logging, tracing, audit, the registry and
// the dispatcher. Logs and audit events go to errOut unless files are
// configured.
func newApp(cfgPath, level string, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	a.log, err = logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    errOut,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = a.log.Component("app")

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName); err != nil {
			a.logger.Warn().Err(err).Msg("OpenTelemetry unavailable, continuing without tracing")
		}
	}

	if cfg.Audit.File != "" {
		a.audit, err = observability.OpenAuditLogger(cfg.Audit.File)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	} else {
		a.audit = observability.NewAuditLogger(errOut)
	}

	policy, err := toolregistry.ParseShortNamePolicy(cfg.Registry.ShortNamePolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = toolregistry.New(
		toolregistry.WithLogger(a.log.Component("registry")),
		toolregistry.WithShortNamePolicy(policy),
	)
	if err := nutrition.RegisterTools(a.registry); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	a.resolver = deps.NewResolver()
	if err := a.provideDependencies(); err != nil {
		a.Close()
		return nil, err
	}

	opts := []dispatch.Option{
		dispatch.WithLogger(a.log.Component("dispatcher")),
		dispatch.WithAuditLogger(a.audit),
		dispatch.WithArgumentValidation(cfg.Dispatch.ValidateArguments),
		dispatch.WithBatchConcurrency(cfg.Dispatch.BatchConcurrency),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewMetrics()
		a.metrics.SetToolsRegistered(a.registry.Len())
		opts = append(opts, dispatch.WithMetrics(a.metrics))
	}
	a.dispatcher = dispatch.New(a.registry, a.resolver, opts...)

	if err := a.dispatcher.Validate(); err != nil {
		a.Close()
		return nil, fmt.Errorf("dispatcher is misconfigured: %w", err)
	}

	a.logger.Debug().Int("tools", a.registry.Len()).Msg("Runtime initialized")
	return a, nil
}

// provideDependencies registers the store and AI service. Both are opened
// lazily so commands that never touch them do not need them configured.
func (a *app) provideDependencies() error {
	storeLogger := a.log.Component("store")
	err := a.resolver.Provide(nutrition.DataStoreKey, deps.Singleton(func(ctx context.Context) (any, error) {
		store, err := nutrition.NewSQLiteStore(a.cfg.Store.Path, storeLogger)
		if err != nil {
			return nil, err
		}
		a.storeMu.Lock()
		a.store = store
		a.storeMu.Unlock()
		return store, nil
	}))
	if err != nil {
		return err
	}

	return a.resolver.Provide(nutrition.AIServiceKey, deps.Singleton(func(ctx context.Context) (any, error) {
		if a.cfg.AI.Provider == "" {
			return nil, errors.New("AI service is disabled")
		}
		est, err := nutrition.NewEstimator(nutrition.EstimatorConfig{
			Provider:  a.cfg.AI.Provider,
			APIKey:    a.cfg.AI.APIKey,
			Model:     a.cfg.AI.Model,
			MaxTokens: a.cfg.AI.MaxTokens,
		})
		if err != nil || a.cfg.AI.CacheSize == 0 {
			return est, err
		}
		return nutrition.NewCachedEstimator(est, a.cfg.AI.CacheSize, time.Duration(a.cfg.AI.CacheTTL)*time.Second), nil
	}))
}

// Close releases the store, audit log, tracer provider and log file
func (a *app) Close() error {
	var errs []error

	a.storeMu.Lock()
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	a.storeMu.Unlock()

	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.cfg != nil && a.cfg.Tracing.Enabled {
		errs = append(errs, tracing.ShutdownOpenTelemetry(context.Background()))
	}
	if a.log != nil {
		errs = append(errs, a.log.Close())
	}

	return errors.Join(errs...)
}
