package tool

import (
	"context"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
)

// UpdateFunc is a function that posts a progress message during tool
// execution. Tools call this to report what they are doing.
type UpdateFunc func(ctx context.Context, message string)

type updateKey struct{}

// WithUpdate returns a new context that carries the given UpdateFunc.
func WithUpdate(ctx context.Context, fn UpdateFunc) context.Context {
	return context.WithValue(ctx, updateKey{}, fn)
}

// Update calls the UpdateFunc stored in ctx with the given message.
// If no UpdateFunc is present in ctx, the call is a no-op.
func Update(ctx context.Context, message string) {
	if fn, ok := ctx.Value(updateKey{}).(UpdateFunc); ok {
		fn(ctx, message)
	}
}

type priorResultsKey struct{}

// WithPriorResults carries the accumulated results of earlier tools in
// the turn, for dependent tools whose inputs build on earlier outputs.
func WithPriorResults(ctx context.Context, results []*model.ToolResult) context.Context {
	return context.WithValue(ctx, priorResultsKey{}, results)
}

// PriorResults returns the accumulated prior results, or nil when the
// tool runs in the independent phase.
func PriorResults(ctx context.Context) []*model.ToolResult {
	if results, ok := ctx.Value(priorResultsKey{}).([]*model.ToolResult); ok {
		return results
	}
	return nil
}
