package telemetry

import (
	"testing"
	"time"

	"github.com/directdev/directclient/internal/rpctypes"
)

func TestDrainAndRestore(t *testing.T) {
	b := New()
	b.RecordCacheHit(rpctypes.TelemetryRecord{BlockHeight: "0x1", ObservedAt: time.Now()})
	b.RecordPrefetchHit(rpctypes.TelemetryRecord{BlockHeight: "0x1", ObservedAt: time.Now()})

	tail := b.Drain()
	if len(tail.CacheHits) != 1 || len(tail.PrefetchHits) != 1 {
		t.Fatalf("drained tail mismatch: %+v", tail)
	}
	if !b.Empty() {
		t.Fatal("buffer should be empty after drain")
	}

	b.Restore(tail)
	if b.Empty() {
		t.Fatal("buffer should not be empty after restore")
	}
	tail2 := b.Drain()
	if len(tail2.CacheHits) != 1 || len(tail2.PrefetchHits) != 1 {
		t.Fatalf("restored tail mismatch: %+v", tail2)
	}
}

func TestRecordInflightHit(t *testing.T) {
	b := New()
	b.RecordInflightHit(rpctypes.TelemetryRecord{BlockHeight: "0x1"})
	tail := b.Drain()
	if len(tail.InflightHits) != 1 {
		t.Fatalf("expected one inflight hit, got %+v", tail)
	}
}
