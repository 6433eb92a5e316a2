// Package query defines the language-model collaborator and the bounded
// fan-out used to sample it repeatedly.
package query

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Querier sends one prompt and returns one free-text completion. Transport
// failures wrap internalerr.ErrQuery.
type Querier interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// Result is one settled slot from a fan-out: either a response or the
// error that produced none.
type Result struct {
	Text string
	Err  error
}

// Collect issues n copies of prompt with at most limit requests in flight
// and returns one Result per slot, in slot order. A failed request settles
// its own slot and never cancels the others.
func Collect(ctx context.Context, q Querier, prompt string, n, limit int) []Result {
	if n <= 0 {
		return nil
	}

	results := make([]Result, n)
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			text, err := q.Query(ctx, prompt)
			results[i] = Result{Text: text, Err: err}
			return nil
		})
	}
	// Tasks never return errors; failures live in their slots.
	_ = g.Wait()
	return results
}
