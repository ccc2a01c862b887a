package archive

import (
	"context"
	"errors"
	"testing"

	"graphmix/internal/blob"
	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
	"graphmix/pkg/location"
	"graphmix/pkg/mix"
	"graphmix/pkg/protocol"
	"graphmix/pkg/units"
)

func sample(t *testing.T) *protocol.Protocol {
	t.Helper()
	water := chem.MustNew("Water", "H2O", 18.01528)
	s, err := mix.New("water").WithChemical(water, units.Percentage(100))
	if err != nil {
		t.Fatalf("water: %v", err)
	}
	set, err := location.WellPlate(24)
	if err != nil {
		t.Fatalf("plate: %v", err)
	}
	p := protocol.New().WithGrid("rack", set)
	if _, err := p.WithNode(s, units.MustNew(1, "mL"), protocol.Grid("rack")); err != nil {
		t.Fatalf("node: %v", err)
	}
	if _, err := p.Solve(); err != nil {
		t.Fatalf("solve: %v", err)
	}
	return p
}

func stores(t *testing.T) map[string]blob.Store {
	t.Helper()
	ctx := context.Background()
	fs, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	s3, err := blob.NewMockS3(ctx)
	if err != nil {
		t.Fatalf("s3: %v", err)
	}
	return map[string]blob.Store{"memory": blob.NewMemory(), "fs": fs, "s3": s3}
}

func TestSaveListLatest(t *testing.T) {
	ctx := context.Background()
	for driver, store := range stores(t) {
		a := New(store)
		p := sample(t)
		first, err := a.Save(ctx, "buffer", p, protocol.JSON)
		if err != nil {
			t.Fatalf("%s save json: %v", driver, err)
		}
		second, err := a.Save(ctx, "buffer", p, protocol.YAML)
		if err != nil {
			t.Fatalf("%s save yaml: %v", driver, err)
		}
		if first.Key != "protocols/buffer/"+first.ID+".json" {
			t.Fatalf("%s key = %s", driver, first.Key)
		}
		if _, err := a.Save(ctx, "other", p, ""); err != nil {
			t.Fatalf("%s save other: %v", driver, err)
		}

		revs, err := a.List(ctx, "buffer")
		if err != nil {
			t.Fatalf("%s list: %v", driver, err)
		}
		if len(revs) != 2 || revs[0].ID != first.ID || revs[1].ID != second.ID {
			t.Fatalf("%s revisions = %+v", driver, revs)
		}

		got, rev, err := a.Latest(ctx, "buffer")
		if err != nil {
			t.Fatalf("%s latest: %v", driver, err)
		}
		if rev.ID != second.ID || rev.Format != protocol.YAML {
			t.Fatalf("%s latest = %+v", driver, rev)
		}
		if !got.Solved() || len(got.Nodes()) != 1 {
			t.Fatalf("%s decoded protocol = %+v", driver, got.Document())
		}
	}
}

func TestLatestMissing(t *testing.T) {
	a := New(blob.NewMemory())
	_, _, err := a.Latest(context.Background(), "nothing")
	if !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("err = %v", err)
	}
	_, err = a.Load(context.Background(), Revision{Key: "protocols/x/y.json", Format: protocol.JSON})
	if !errors.Is(err, domain.ErrUnknownReference) {
		t.Fatalf("load err = %v", err)
	}
}

func TestRejectsBadInput(t *testing.T) {
	a := New(blob.NewMemory())
	ctx := context.Background()
	for _, name := range []string{"", "..", "a/b"} {
		if _, err := a.Save(ctx, name, sample(t), protocol.JSON); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("name %q: err = %v", name, err)
		}
	}
	if _, err := a.Save(ctx, "buffer", sample(t), protocol.Format("xml")); err == nil {
		t.Fatalf("unknown format accepted")
	}
}
