package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
)

// CallerParam is the parameter name under which the caller's id is bound for
// handlers that declare it
const CallerParam = "user_id"

// Handler executes a tool. args holds caller-supplied values, declared
// defaults, resolved dependencies and, when declared, the caller's id.
type Handler interface {
	Handle(ctx context.Context, args Args) (any, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, args Args) (any, error) {
	return f(ctx, args)
}

// LegacyHandler is the older calling convention: a bare parameter map, no context
type LegacyHandler func(params map[string]interface{}) (interface{}, error)

// LegacyAdapter lets a LegacyHandler be registered as a Handler
type LegacyAdapter struct {
	Fn LegacyHandler
}

// Handle forwards args to the legacy function unless ctx is already done
func (a LegacyAdapter) Handle(ctx context.Context, args Args) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.Fn == nil {
		return nil, fmt.Errorf("legacy handler is nil")
	}
	return a.Fn(map[string]interface{}(args))
}

// Args are the bound arguments passed to a handler
type Args map[string]any

// CallerID returns the injected caller id
func (a Args) CallerID() (string, bool) {
	id, ok := a[CallerParam].(string)
	return id, ok
}

// Arg reads a caller argument as T. Values decoded from JSON are converted
// (e.g. float64 to int); failures wrap ErrInvalidArguments.
func Arg[T any](args Args, name string) (T, error) {
	var zero T

	v, ok := args[name]
	if !ok || v == nil {
		return zero, InvalidArgumentf("missing argument %q", name)
	}

	typed, err := convert[T](v)
	if err != nil {
		return zero, InvalidArgumentf("argument %q: %v", name, err)
	}
	return typed, nil
}

// ArgOr reads an optional caller argument, returning def when it is absent
func ArgOr[T any](args Args, name string, def T) (T, error) {
	if v, ok := args[name]; !ok || v == nil {
		return def, nil
	}
	return Arg[T](args, name)
}

// Dep reads a resolved dependency bound under the handler parameter name
func Dep[T any](args Args, name string) (T, error) {
	var zero T

	v, ok := args[name]
	if !ok {
		return zero, fmt.Errorf("dependency %q was not bound", name)
	}

	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("dependency %q has type %T, want %T", name, v, zero)
	}
	return typed, nil
}

// convert asserts v to T, falling back to a JSON round trip
func convert[T any](v any) (T, error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("cannot convert %T to %T", v, out)
	}
	return out, nil
}
