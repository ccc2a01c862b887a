package registry

import (
	"context"
	"errors"
	"testing"

	"graphmix/internal/core"
	"graphmix/internal/infra/persistence/memory"
	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
)

type fakeLookup struct {
	known map[string]chem.Chemical
	calls int
}

func (f *fakeLookup) Lookup(_ context.Context, name string) (chem.Chemical, error) {
	f.calls++
	c, ok := f.known[name]
	if !ok {
		return chem.Chemical{}, domain.NotFoundError{Entity: "chemical", Name: name}
	}
	return c, nil
}

func TestGetCachesRemoteLookups(t *testing.T) {
	ctx := context.Background()
	remote := &fakeLookup{known: map[string]chem.Chemical{"NaCl": chem.MustNew("NaCl", "NaCl", 58.44)}}
	rec := core.NewExpvarMetricsRecorder("")
	r := New(memory.NewStore(), remote, WithMetrics(rec))

	for i := 0; i < 2; i++ {
		c, err := r.Get(ctx, "NaCl")
		if err != nil || c.Formula != "NaCl" {
			t.Fatalf("Get #%d = %+v, %v", i, c, err)
		}
	}
	if remote.calls != 1 {
		t.Fatalf("remote calls = %d, want 1", remote.calls)
	}
	snap := rec.Snapshot()
	if snap.Results[core.OpRegistryRemote]["success"] != 1 || snap.Results[core.OpRegistryLocal]["success"] != 1 {
		t.Fatalf("metrics = %v", snap.Results)
	}

	if _, err := r.Get(ctx, "Unobtainium"); !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("miss err = %v", err)
	}
	if rec.Snapshot().Results[core.OpRegistryMiss]["error"] != 1 {
		t.Fatalf("miss not recorded: %v", rec.Snapshot().Results)
	}
}

func TestLocalOnlyAndAdd(t *testing.T) {
	ctx := context.Background()
	r := New(memory.NewStore(), nil)
	if _, err := r.Chemical(ctx, "Water"); !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("err = %v", err)
	}
	water := chem.MustNew("Water", "H2O", 18.01528)
	if err := r.Add(ctx, water); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(ctx, water); !errors.Is(err, domain.ErrDuplicateEntity) {
		t.Fatalf("duplicate err = %v", err)
	}
	if got, err := r.Chemical(ctx, "Water"); err != nil || got.Formula != "H2O" {
		t.Fatalf("Chemical = %+v, %v", got, err)
	}
	list, _ := r.List(ctx)
	if len(list) != 1 {
		t.Fatalf("List = %v", list)
	}
}
