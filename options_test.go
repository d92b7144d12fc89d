package embedstore

import (
	"context"
	"errors"
	"testing"
)

func TestWithCodec(t *testing.T) {
	provider := newMockProvider()
	store := New[segment](provider, WithCodec[segment](GobCodec{}))

	if _, ok := store.codec.(GobCodec); !ok {
		t.Fatal("expected GobCodec")
	}

	ctx := context.Background()
	id, err := store.AddEmbedded(ctx, emb(1, 0), segment{Text: "gob"})
	if err != nil {
		t.Fatalf("AddEmbedded failed: %v", err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Embedded.Text != "gob" {
		t.Errorf("expected gob payload, got %+v", got.Embedded)
	}
}

func TestWithCodec_NilCodec(t *testing.T) {
	store := New[segment](newMockProvider(), WithCodec[segment](nil))

	if _, ok := store.codec.(JSONCodec); !ok {
		t.Error("expected JSONCodec fallback for nil codec")
	}
}

func TestWithDimension(t *testing.T) {
	store := New[segment](newMockProvider(), WithDimension[segment](4))
	if store.Dimension() != 4 {
		t.Fatalf("expected dimension 4, got %d", store.Dimension())
	}

	ctx := context.Background()
	if _, err := store.Add(ctx, emb(1, 2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := store.Add(ctx, emb(1, 2, 3, 4)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if New[segment](newMockProvider(), WithDimension[segment](0)).Dimension() != 0 {
		t.Error("non-positive dimension should leave the store unfixed")
	}
}

func TestWithIDGenerator(t *testing.T) {
	store := New[segment](newMockProvider(), WithIDGenerator[segment](sequentialIDs("doc")))

	ids, err := store.AddAll(context.Background(), []Embedding{emb(1), emb(2), emb(3)})
	if err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	want := []string{"doc-1", "doc-2", "doc-3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}

	if New[segment](newMockProvider(), WithIDGenerator[segment](nil)).newID == nil {
		t.Error("expected default generator for nil")
	}
}
