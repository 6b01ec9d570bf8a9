// Package toolcall runs tool handlers for the dispatcher. Handlers are not
// reachable through the public toolregistry API, so code outside this module
// cannot call a tool without going through dispatch.
package toolcall

import (
	"context"
	"errors"
	"sync"
)

// InvokeFunc runs the handler of tool with args
type InvokeFunc func(ctx context.Context, tool any, args map[string]any) (any, error)

var (
	mu      sync.RWMutex
	invoker InvokeFunc
)

// SetInvoker installs the handler hook. toolregistry calls it from init.
func SetInvoker(fn InvokeFunc) {
	mu.Lock()
	invoker = fn
	mu.Unlock()
}

// Invoke runs tool's handler. It performs no permission checks or binding.
func Invoke(ctx context.Context, tool any, args map[string]any) (any, error) {
	mu.RLock()
	fn := invoker
	mu.RUnlock()

	if fn == nil {
		return nil, errors.New("no tool invoker installed")
	}
	return fn(ctx, tool, args)
}
