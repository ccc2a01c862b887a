package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"graphmix/pkg/chem"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if !strings.HasPrefix(rec.Name(), "graphmix_metrics_") {
		t.Fatalf("Name = %s", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, OpProtocolSolve, true, 2*time.Millisecond)
	rec.Observe(ctx, OpProtocolSolve, false, 3*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if got := snap.DurationsMS[OpProtocolSolve]; got != 5 {
		t.Fatalf("duration = %v, want 5", got)
	}
	if snap.Results[OpProtocolSolve]["success"] != 1 || snap.Results[OpProtocolSolve]["error"] != 1 {
		t.Fatalf("results = %v", snap.Results)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation must be ignored: %v", snap.Results)
	}
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusMetricsRecorder: %v", err)
	}
	err = Measure(context.Background(), MultiRecorder{rec, NopMetrics{}}, OpRegistryMiss, func() error { return errors.New("boom") })
	if err == nil {
		t.Fatalf("Measure must return fn's error")
	}
	if got := testutil.ToFloat64(rec.total.WithLabelValues(OpRegistryMiss, "error")); got != 1 {
		t.Fatalf("counter = %v", got)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("double registration must fail")
	}
}

func TestOpenChemicalStore(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []StorageConfig{
		{Driver: StorageMemory},
		{Driver: StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "chem.db")},
	} {
		repo, err := OpenChemicalStore(ctx, cfg)
		if err != nil {
			t.Fatalf("%s: %v", cfg.Driver, err)
		}
		if err := repo.Add(ctx, chem.MustNew("NaCl", "NaCl", 58.44)); err != nil {
			t.Fatalf("%s add: %v", cfg.Driver, err)
		}
	}
	if _, err := OpenChemicalStore(ctx, StorageConfig{Driver: "csv"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
