package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/searchflow/internal/observability"
	metrics "github.com/aixgo-dev/searchflow/pkg/observability"
)

// TaskFunc is one independent unit of a fan-out. i is the task's input position.
type TaskFunc[T any] func(ctx context.Context, i int) (T, error)

// FanOut runs n tasks concurrently and waits for all of them.
// At most limit tasks run at once when limit > 0; otherwise all n are launched together.
// Results are returned in input order. The first failure cancels the context passed to
// the remaining tasks and is returned once every task has finished; no partial results
// are returned.
func FanOut[T any](ctx context.Context, n, limit int, fn TaskFunc[T]) ([]T, error) {
	ctx, span := observability.StartSpanWithOtel(ctx, "orchestration.fanout",
		trace.WithAttributes(
			attribute.String("orchestration.pattern", "parallel"),
			attribute.Int("orchestration.task_count", n),
			attribute.Int("orchestration.limit", limit),
		),
	)

	if n <= 0 {
		observability.EndSpan(span, nil)
		return nil, nil
	}
	metrics.RecordFanOut(n)

	startTime := time.Now()
	results := make([]T, n)

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := fn(gctx, i)
			if err != nil {
				return fmt.Errorf("task %d failed: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}

	err := g.Wait()
	span.SetAttributes(attribute.Int64("orchestration.duration_ms", time.Since(startTime).Milliseconds()))
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// LabelResults concatenates results as "Result 1:", "Result 2:", ... in order.
func LabelResults(results []string) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Result %d:\n%s", i+1, strings.TrimSpace(r))
	}
	return sb.String()
}
