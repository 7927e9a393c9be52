package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveResolveCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(resolveTotal.WithLabelValues("cache_hit"))
	ObserveResolve("cache_hit", 3*time.Millisecond)
	after := testutil.ToFloat64(resolveTotal.WithLabelValues("cache_hit"))
	if after != before+1 {
		t.Fatalf("resolve cache_hit = %v, want %v", after, before+1)
	}
}

func TestObserveQueryCountsByModeAndStatus(t *testing.T) {
	before := testutil.ToFloat64(queriesTotal.WithLabelValues("filtered", "ok"))
	ObserveQuery("filtered", "ok")
	ObserveQuery("filtered", "error")
	after := testutil.ToFloat64(queriesTotal.WithLabelValues("filtered", "ok"))
	if after != before+1 {
		t.Fatalf("queries filtered/ok = %v, want %v", after, before+1)
	}
}

func TestIncrementScratchCleanupFailure(t *testing.T) {
	before := testutil.ToFloat64(scratchCleanupFailuresTotal)
	IncrementScratchCleanupFailure()
	if got := testutil.ToFloat64(scratchCleanupFailuresTotal); got != before+1 {
		t.Fatalf("cleanup failures = %v, want %v", got, before+1)
	}
}
