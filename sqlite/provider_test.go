package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/testing/conformance"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "embeddings.db")
	p, err := Open(context.Background(), dsn, Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestConformance(t *testing.T) {
	conformance.RunConformance(t, &conformance.TestContext{
		NewProvider: func(t *testing.T) embedstore.Provider {
			return newTestProvider(t)
		},
	})
}

func TestNew_InvalidTable(t *testing.T) {
	p := newTestProvider(t)
	_, err := New(context.Background(), p.DB(), Config{Table: `x"; DROP TABLE y; --`})
	if !errors.Is(err, embedstore.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProvider_NullPayload(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if err := p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 2}}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, err := p.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Embedded != nil {
		t.Errorf("expected nil payload, got %q", got.Embedded)
	}
	if len(got.Vector) != 2 || got.Vector[1] != 2 {
		t.Errorf("unexpected vector %v", got.Vector)
	}
}

func TestProvider_UpdateRollsBack(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 0}, Embedded: []byte(`"old"`)}})

	err := p.Update(ctx, []embedstore.VectorRecord{
		{ID: "a", Vector: []float32{0, 1}, Embedded: []byte(`"new"`)},
		{ID: "missing", Vector: []float32{0, 1}},
	})
	if !errors.Is(err, embedstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, _ := p.Get(ctx, "a")
	if string(got.Embedded) != `"old"` || got.Vector[0] != 1 {
		t.Errorf("expected transaction rolled back, got %+v", got)
	}
}

func TestProvider_SharedTable(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()
	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1}}})

	// A second provider on the same table sees existing entries.
	again, err := New(ctx, p.DB(), Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := again.Get(ctx, "a"); err != nil {
		t.Errorf("expected entry visible, got %v", err)
	}

	// A provider on another table does not.
	other, err := New(ctx, p.DB(), Config{Table: "other"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := other.Get(ctx, "a"); !errors.Is(err, embedstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProvider_DimensionAfterReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "embeddings.db")

	p, err := Open(ctx, dsn, Config{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if dim, err := p.Dimension(ctx); err != nil || dim != 0 {
		t.Fatalf("empty table: got %d, %v", dim, err)
	}
	if _, err := embedstore.New[string](p).Add(ctx, embedstore.NewEmbedding(1, 0, 0)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(ctx, dsn, Config{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	if dim, err := reopened.Dimension(ctx); err != nil || dim != 3 {
		t.Fatalf("expected 3, got %d, %v", dim, err)
	}
	store := embedstore.New[string](reopened)
	if _, err := store.Add(ctx, embedstore.NewEmbedding(1, 0, 0, 0)); !errors.Is(err, embedstore.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
