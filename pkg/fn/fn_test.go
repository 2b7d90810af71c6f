package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
}

func TestErrf(t *testing.T) {
	r := Errf[string]("code %d", 404)
	_, err := r.Unwrap()
	if err == nil || err.Error() != "code 404" {
		t.Fatal("Errf wrong message")
	}
}

func TestFromPair(t *testing.T) {
	if v, _ := FromPair(strconv.Atoi("42")).Unwrap(); v != 42 {
		t.Fatal("FromPair failed")
	}
	if FromPair(strconv.Atoi("nope")).IsOk() {
		t.Fatal("FromPair should fail")
	}
}

func TestCollect(t *testing.T) {
	all, err := Collect([]Result[int]{Ok(1), Ok(2), Ok(3)}).Unwrap()
	if err != nil || len(all) != 3 || all[0] != 1 {
		t.Fatal("Collect failed")
	}

	_, err = Collect([]Result[int]{Ok(1), Err[int](errors.New("e1")), Err[int](errors.New("e2"))}).Unwrap()
	if err == nil || err.Error() != "e1" {
		t.Fatal("Collect should return first error")
	}
}

// --- Slice ---

func TestFilter(t *testing.T) {
	out := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if len(out) != 2 || out[0] != 2 {
		t.Fatal("Filter failed")
	}
}

func TestChunk(t *testing.T) {
	c := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(c) != 3 || len(c[2]) != 1 {
		t.Fatal("Chunk failed")
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("Chunk n<=0 should return nil")
	}
}

// --- Parallel ---

func TestParMap(t *testing.T) {
	out := ParMap([]int{1, 2, 3, 4}, 2, func(v int) int { return v * 2 })
	for i, v := range out {
		if v != (i+1)*2 {
			t.Fatalf("ParMap order broken at %d", i)
		}
	}
}

func TestParMapEmpty(t *testing.T) {
	out := ParMap([]int{}, 4, func(v int) int { return v })
	if len(out) != 0 {
		t.Fatal("ParMap empty should return empty")
	}
}

func TestParMapBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	ParMap(make([]int, 12), 3, func(int) int {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return 0
	})
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent workers, saw %d", peak.Load())
	}
}

func TestParMapResult(t *testing.T) {
	out := ParMapResult([]int{1, 2}, 2, func(v int) Result[int] {
		if v == 2 {
			return Err[int](errors.New("two"))
		}
		return Ok(v)
	})
	if !out[0].IsOk() || out[1].IsOk() {
		t.Fatal("ParMapResult should keep per-item results in order")
	}
}

// --- Pipeline ---

func TestThen(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v * 2) })
	str := Stage[int, string](func(_ context.Context, v int) Result[string] { return Ok(strconv.Itoa(v)) })
	v, err := Then(double, str)(context.Background(), 21).Unwrap()
	if err != nil || v != "42" {
		t.Fatalf("Then failed: %v %v", v, err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	fail := Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errors.New("fail")) })
	track := Stage[int, int](func(_ context.Context, v int) Result[int] {
		called = true
		return Ok(v)
	})
	if Then(fail, track)(context.Background(), 1).IsOk() {
		t.Fatal("Then should short-circuit on error")
	}
	if called {
		t.Fatal("second stage should not be called after error")
	}
}

func TestBatchStage(t *testing.T) {
	sq := Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v * v) })
	v, err := BatchStage(2, sq)(context.Background(), []int{1, 2, 3}).Unwrap()
	if err != nil || v[2] != 9 {
		t.Fatal("BatchStage failed")
	}
}

func TestTracedStage(t *testing.T) {
	fail := Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errors.New("boom")) })
	if TracedStage("fail", fail)(context.Background(), 1).IsOk() {
		t.Fatal("TracedStage should pass errors through")
	}
}

// --- Retry ---

func TestRetrySuccess(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3}, func(_ context.Context) Result[int] {
		calls++
		if calls < 3 {
			return Err[int](errors.New("not yet"))
		}
		return Ok(calls)
	})
	if v, err := r.Unwrap(); err != nil || v != 3 {
		t.Fatalf("expected success on 3rd attempt, got %v %v", v, err)
	}
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3}, func(_ context.Context) Result[int] {
		calls++
		return Err[int](errors.New("fail"))
	})
	if r.IsOk() || calls != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", calls)
	}
}

func TestRetryIfStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	r := Retry(context.Background(), RetryOpts{
		MaxAttempts: 5,
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
	}, func(_ context.Context) Result[int] {
		calls++
		return Err[int](permanent)
	})
	if r.IsOk() || calls != 1 {
		t.Fatalf("expected a single attempt for a permanent error, got %d", calls)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	Retry(context.Background(), RetryOpts{}, func(_ context.Context) Result[int] {
		calls++
		return Err[int](errors.New("fail"))
	})
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(_ context.Context) Result[int] {
		return Err[int](errors.New("fail"))
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryStage(t *testing.T) {
	calls := 0
	flaky := Stage[int, int](func(_ context.Context, v int) Result[int] {
		calls++
		if calls == 1 {
			return Err[int](errors.New("flaky"))
		}
		return Ok(v + 1)
	})
	v, err := RetryStage(RetryOpts{MaxAttempts: 2}, flaky)(context.Background(), 1).Unwrap()
	if err != nil || v != 2 {
		t.Fatalf("RetryStage failed: %v %v", v, err)
	}
}
