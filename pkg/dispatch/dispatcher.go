// Package dispatch is the single entry point through which tools are called.
//
// A call runs through five stages: lookup, permission check, dependency
// resolution, argument binding, then invocation and normalization. Every
// outcome, including a panicking handler, comes back as a CallResult.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/harun/toolgate/internal/observability"
	"github.com/harun/toolgate/internal/toolcall"
	"github.com/harun/toolgate/internal/tracing"
	"github.com/harun/toolgate/pkg/deps"
	"github.com/harun/toolgate/pkg/permission"
	"github.com/harun/toolgate/pkg/toolregistry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	statusSuccess = "success"

	// unknownToolLabel replaces caller-supplied names in metrics so unknown
	// names cannot create new series
	unknownToolLabel = "unknown"
)

// MetricsRecorder receives one observation per finished dispatch. status is
// "success" or the ErrorKind of the failure.
type MetricsRecorder interface {
	ObserveDispatch(tool, status string, duration time.Duration)
}

// Dispatcher looks tools up, enforces permissions, binds arguments and
// invokes handlers. It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	registry         *toolregistry.Registry
	resolver         *deps.Resolver
	container        *deps.Container
	logger           zerolog.Logger
	metrics          MetricsRecorder
	audit            *observability.AuditLogger
	validateArgs     bool
	batchConcurrency int
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithContainer sets the dependency override container
func WithContainer(c *deps.Container) Option {
	return func(d *Dispatcher) {
		d.container = c
	}
}

// WithLogger sets the dispatcher logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithAuditLogger sets where permission denials and privileged executions
// are recorded
func WithAuditLogger(a *observability.AuditLogger) Option {
	return func(d *Dispatcher) {
		d.audit = a
	}
}

// WithArgumentValidation toggles schema validation of caller arguments
func WithArgumentValidation(enabled bool) Option {
	return func(d *Dispatcher) {
		d.validateArgs = enabled
	}
}

// WithBatchConcurrency bounds how many calls DispatchBatch runs at once
func WithBatchConcurrency(n int) Option {
	return func(d *Dispatcher) {
		d.batchConcurrency = n
	}
}

// New creates a dispatcher over reg. resolver may be nil when no tool
// declares dependencies.
func New(reg *toolregistry.Registry, resolver *deps.Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:         reg,
		resolver:         resolver,
		logger:           log.Logger,
		validateArgs:     true,
		batchConcurrency: 8,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.resolver == nil {
		d.resolver = deps.NewResolver()
	}
	if d.audit == nil {
		d.audit = observability.GetAuditLogger()
	}
	d.logger = d.logger.With().Str("component", "dispatcher").Logger()

	return d
}

// WithContainer returns a copy of the dispatcher that resolves overrides from c.
// Tests use it to get an isolated view of shared production wiring.
func (d *Dispatcher) WithContainer(c *deps.Container) *Dispatcher {
	clone := *d
	clone.container = c
	return &clone
}

// Registry returns the registry the dispatcher reads from
func (d *Dispatcher) Registry() *toolregistry.Registry {
	return d.registry
}

// Validate reports tools whose dependency keys have neither a provider nor
// an override. Call it once after all tools and providers are registered.
func (d *Dispatcher) Validate() error {
	var errs []error
	for _, meta := range d.registry.ListTools() {
		for _, dep := range meta.Dependencies() {
			if d.resolver.Has(dep.Key) {
				continue
			}
			if _, ok := d.container.Override(dep.Key); ok {
				continue
			}
			errs = append(errs, fmt.Errorf("tool %s: parameter %s: %w: %s", meta.Name(), dep.Param, deps.ErrUnknownDependency, dep.Key))
		}
	}
	return errors.Join(errs...)
}

// Dispatch calls the named tool on behalf of caller. name is tried as a full
// name first, then as a short name. Dispatch never panics and reports every
// failure in the returned CallResult.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any, caller permission.AuthenticatedUser) CallResult {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, tracing.TracerName, "tool.dispatch",
		tracing.DispatchAttributes(name, caller.ID, string(caller.Role))...)
	ctx = tracing.WithCallerID(ctx, caller.ID)

	result := d.safeDispatch(ctx, name, args, caller)

	status := statusSuccess
	message := ""
	if result.Err != nil {
		status = string(result.Err.Kind)
		message = result.Err.Message
	}
	tracing.EndSpan(span, string(result.Kind()), message)

	if d.metrics != nil {
		label := result.Tool
		if result.Kind() == UnknownTool {
			label = unknownToolLabel
		}
		d.metrics.ObserveDispatch(label, status, time.Since(start))
	}

	return result
}

// safeDispatch turns a panic in any stage outside the handler goroutine into
// a HandlerError
func (d *Dispatcher) safeDispatch(ctx context.Context, name string, args map[string]any, caller permission.AuthenticatedUser) (result CallResult) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := tracing.CorrelationID(ctx)
			logger := tracing.LoggerFromContext(ctx, d.logger)
			logger.Error().
				Str("tool", name).
				Str("correlation_id", correlationID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Dispatch panicked")
			result = Failure(name, HandlerError, "tool failed unexpectedly", correlationID)
		}
	}()

	return d.dispatch(ctx, name, args, caller)
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, args map[string]any, caller permission.AuthenticatedUser) CallResult {
	logger := tracing.LoggerFromContext(ctx, d.logger)

	// Lookup
	meta, ok := d.registry.Get(name)
	if !ok {
		meta, ok = d.registry.GetByShortName(name)
	}
	if !ok {
		logger.Debug().Str("tool", name).Msg("Unknown tool")
		return Failure(name, UnknownTool, fmt.Sprintf("unknown tool: %s", name), "")
	}

	tool := meta.Name()
	ctx = tracing.WithTool(ctx, tool)
	logger = logger.With().Str("tool", tool).Logger()

	// Permission check
	if outcome := permission.Check(meta, caller); outcome != permission.Allowed {
		kind := kindForOutcome(outcome)
		logger.Warn().
			Str("caller", caller.ID).
			Str("role", string(caller.Role)).
			Str("outcome", outcome.String()).
			Msg("Tool call denied")
		d.audit.RecordDenial(ctx, tool, caller.ID, string(caller.Role), outcome.String())
		return Failure(tool, kind, denialMessage(kind, tool), "")
	}

	// Dependency resolution
	resolved := make(map[string]any, len(meta.Dependencies()))
	for _, dep := range meta.Dependencies() {
		v, err := d.resolve(ctx, logger, dep.Key)
		if err != nil {
			correlationID := tracing.CorrelationID(ctx)
			logger.Error().
				Err(err).
				Str("dependency", string(dep.Key)).
				Str("correlation_id", correlationID).
				Msg("Dependency resolution failed")
			return Failure(tool, HandlerError, "tool dependencies are unavailable", correlationID)
		}
		resolved[dep.Param] = v
	}

	// Argument binding
	bound, err := d.bind(logger, meta, args, resolved, caller)
	if err != nil {
		logger.Debug().Err(err).Msg("Invalid arguments")
		return Failure(tool, InvalidArguments, err.Error(), "")
	}

	// Invocation
	return d.invoke(ctx, logger, meta, bound, caller)
}

// resolve runs a provider, converting a panic into an error so the caller
// sees the same terse failure as for a provider error
func (d *Dispatcher) resolve(ctx context.Context, logger zerolog.Logger, key deps.Key) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("dependency", string(key)).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Dependency provider panicked")
			err = fmt.Errorf("provider for %s panicked: %v", key, r)
		}
	}()

	return d.resolver.Resolve(ctx, key, d.container)
}

// bind merges defaults, caller arguments and resolved dependencies, in
// increasing precedence. Caller values for runtime-bound parameters are dropped.
func (d *Dispatcher) bind(logger zerolog.Logger, meta *toolregistry.ToolMetadata, args map[string]any, resolved map[string]any, caller permission.AuthenticatedUser) (toolregistry.Args, error) {
	callerArgs := make(map[string]any, len(args))
	var shadowed []string
	for k, v := range args {
		if meta.IsBound(k) {
			shadowed = append(shadowed, k)
			continue
		}
		callerArgs[k] = v
	}
	if len(shadowed) > 0 {
		sort.Strings(shadowed)
		logger.Debug().Strs("params", shadowed).Msg("Ignoring caller arguments bound by the runtime")
	}

	if d.validateArgs {
		if err := meta.ValidateArguments(callerArgs); err != nil {
			return nil, err
		}
	}

	bound := toolregistry.Args(meta.Defaults())
	for k, v := range callerArgs {
		bound[k] = v
	}
	for k, v := range resolved {
		bound[k] = v
	}
	if meta.AcceptsCaller() {
		bound[toolregistry.CallerParam] = caller.ID
	}

	return bound, nil
}

type invocation struct {
	payload   any
	err       error
	recovered any
	stack     []byte
}

// invoke runs the handler in its own goroutine so a canceled context is
// honoured even when the handler ignores it
func (d *Dispatcher) invoke(ctx context.Context, logger zerolog.Logger, meta *toolregistry.ToolMetadata, args toolregistry.Args, caller permission.AuthenticatedUser) CallResult {
	tool := meta.Name()

	if err := ctx.Err(); err != nil {
		return Failure(tool, Canceled, "call canceled", "")
	}

	start := time.Now()
	done := make(chan invocation, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{recovered: r, stack: debug.Stack()}
			}
		}()

		payload, err := toolcall.Invoke(ctx, meta, args)
		done <- invocation{payload: payload, err: err}
	}()

	var result CallResult
	select {
	case inv := <-done:
		result = d.normalize(ctx, logger, tool, inv)
	case <-ctx.Done():
		logger.Warn().Err(ctx.Err()).Dur("elapsed", time.Since(start)).Msg("Tool call canceled")
		result = Failure(tool, Canceled, "call canceled", "")
	}

	if meta.RequiresWrite() || meta.RequiresAdmin() {
		status := observability.StatusSuccess
		if !result.OK() {
			status = observability.StatusFailure
		}
		correlationID := ""
		if result.Err != nil {
			correlationID = result.Err.CorrelationID
		}
		d.audit.RecordTool(ctx, tool, caller.ID, string(caller.Role), status, correlationID, map[string]interface{}{
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}

	return result
}

func (d *Dispatcher) normalize(ctx context.Context, logger zerolog.Logger, tool string, inv invocation) CallResult {
	if inv.recovered != nil {
		correlationID := tracing.CorrelationID(ctx)
		logger.Error().
			Str("correlation_id", correlationID).
			Interface("panic", inv.recovered).
			Bytes("stack", inv.stack).
			Msg("Tool handler panicked")
		return Failure(tool, HandlerError, "tool failed unexpectedly", correlationID)
	}

	if inv.err == nil {
		return Success(tool, inv.payload)
	}

	switch {
	case errors.Is(inv.err, toolregistry.ErrInvalidArguments):
		logger.Debug().Err(inv.err).Msg("Handler rejected arguments")
		return Failure(tool, InvalidArguments, inv.err.Error(), "")
	case ctx.Err() != nil && (errors.Is(inv.err, context.Canceled) || errors.Is(inv.err, context.DeadlineExceeded)):
		return Failure(tool, Canceled, "call canceled", "")
	}

	correlationID := tracing.CorrelationID(ctx)
	logger.Error().
		Err(inv.err).
		Str("correlation_id", correlationID).
		Msg("Tool handler failed")
	return Failure(tool, HandlerError, "tool failed", correlationID)
}

func denialMessage(kind ErrorKind, tool string) string {
	if kind == AdminPermissionDenied {
		return fmt.Sprintf("tool %s requires admin permission", tool)
	}
	return fmt.Sprintf("tool %s requires write permission", tool)
}
