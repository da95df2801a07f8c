package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/aixgo-dev/searchflow/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFanOut_PreservesInputOrder(t *testing.T) {
	results, err := FanOut(context.Background(), 5, 0, func(ctx context.Context, i int) (string, error) {
		// later tasks finish first
		time.Sleep(time.Duration(5-i) * 5 * time.Millisecond)
		return fmt.Sprintf("r%d", i), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r0", "r1", "r2", "r3", "r4"}, results)
}

func TestFanOut_AllLaunchedBeforeAnyCompletes(t *testing.T) {
	const n = 4
	var started atomic.Int32
	allStarted := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results, err := FanOut(ctx, n, 0, func(ctx context.Context, i int) (int, error) {
		if started.Add(1) == n {
			close(allStarted)
		}
		select {
		case <-allStarted:
			return i * 10, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30}, results)
	assert.Equal(t, int32(n), started.Load())
}

func TestFanOut_Limit(t *testing.T) {
	var inFlight, peak atomic.Int32

	_, err := FanOut(context.Background(), 8, 2, func(ctx context.Context, i int) (struct{}, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOut_FailureCancelsSiblings(t *testing.T) {
	boom := errors.New("search backend down")
	var cancelled atomic.Int32

	start := time.Now()
	results, err := FanOut(context.Background(), 3, 0, func(ctx context.Context, i int) (string, error) {
		if i == 1 {
			return "", boom
		}
		select {
		case <-ctx.Done():
			cancelled.Add(1)
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
			return "late", nil
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "task 2 failed")
	assert.Nil(t, results)
	assert.LessOrEqual(t, cancelled.Load(), int32(2))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFanOut_Empty(t *testing.T) {
	results, err := FanOut(context.Background(), 0, 0, func(ctx context.Context, i int) (int, error) {
		t.Fatal("task must not run")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFanOut_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	observability.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, err := FanOut(context.Background(), 2, 0, func(ctx context.Context, i int) (int, error) {
		return i, nil
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "orchestration.fanout", spans[0].Name())
}

func TestLabelResults(t *testing.T) {
	got := LabelResults([]string{" alpha ", "beta"})
	assert.Equal(t, "Result 1:\nalpha\n\nResult 2:\nbeta", got)
	assert.Equal(t, "", LabelResults(nil))
}
