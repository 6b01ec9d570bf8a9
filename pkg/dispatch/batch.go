package dispatch

import (
	"context"

	"github.com/harun/toolgate/pkg/permission"
	"golang.org/x/sync/errgroup"
)

// Call is one entry of a batch
type Call struct {
	Name   string                       `json:"name"`
	Args   map[string]any               `json:"args,omitempty"`
	Caller permission.AuthenticatedUser `json:"-"`
}

// DispatchBatch runs calls concurrently, at most WithBatchConcurrency at a
// time, and returns their results in input order. A failed call never stops
// the others.
func (d *Dispatcher) DispatchBatch(ctx context.Context, calls []Call) []CallResult {
	results := make([]CallResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	var g errgroup.Group
	if d.batchConcurrency > 0 {
		g.SetLimit(d.batchConcurrency)
	}

	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.Dispatch(ctx, call.Name, call.Args, call.Caller)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
