package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/testing/conformance"
	"go.etcd.io/bbolt"
)

func setupTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		t.Fatalf("failed to open bolt: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestConformance(t *testing.T) {
	conformance.RunConformance(t, &conformance.TestContext{
		NewProvider: func(t *testing.T) embedstore.Provider {
			return New(setupTestDB(t), "embeddings")
		},
	})
}

func TestNew(t *testing.T) {
	db := setupTestDB(t)
	provider := New(db, "test-bucket")

	if provider.db != db {
		t.Error("db not set correctly")
	}
	if string(provider.bucket) != "test-bucket" {
		t.Errorf("bucket not set correctly: %q", string(provider.bucket))
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")
	p, err := Open(path, "vectors")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	if err := p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1}}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path, "vectors")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.Get(ctx, "a"); err != nil {
		t.Errorf("expected entry to persist, got %v", err)
	}
}

func TestProvider_EmptyBucket(t *testing.T) {
	p := New(setupTestDB(t), "missing")
	ctx := context.Background()

	if _, err := p.Get(ctx, "a"); !errors.Is(err, embedstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	results, err := p.Search(ctx, []float32{1}, 5, 0)
	if err != nil || len(results) != 0 {
		t.Errorf("expected empty search, got %v, %v", results, err)
	}
	if err := p.Delete(ctx, []string{"a"}); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}

func TestProvider_UpdateVectorsUpserts(t *testing.T) {
	p := New(setupTestDB(t), "test")
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 0}, Embedded: []byte(`"kept"`)}})

	err := p.UpdateVectors(ctx, []embedstore.VectorRecord{
		{ID: "a", Vector: []float32{0, 1}},
		{ID: "b", Vector: []float32{1, 1}},
	})
	if err != nil {
		t.Fatalf("UpdateVectors failed: %v", err)
	}

	a, _ := p.Get(ctx, "a")
	if string(a.Embedded) != `"kept"` || a.Vector[1] != 1 {
		t.Errorf("expected vector replaced and payload kept, got %+v", a)
	}
	b, err := p.Get(ctx, "b")
	if err != nil {
		t.Fatalf("expected b inserted, got %v", err)
	}
	if b.Embedded != nil {
		t.Errorf("expected no payload on inserted entry, got %q", b.Embedded)
	}
}

func TestProvider_SearchKeyOrderTies(t *testing.T) {
	p := New(setupTestDB(t), "test")
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: id, Vector: []float32{1, 1}}})
	}
	results, err := p.Search(ctx, []float32{2, 2}, 3, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, results[i].ID)
		}
	}
}

func TestEntryEncoding(t *testing.T) {
	tests := []struct {
		name     string
		vector   []float32
		embedded []byte
	}{
		{"no payload", []float32{1, 2, 3}, nil},
		{"payload", []float32{-1}, []byte(`{"text":"x"}`)},
		{"empty payload", []float32{0.5, 0.25}, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vector, embedded, err := decodeEntry(encodeEntry(tt.vector, tt.embedded))
			if err != nil {
				t.Fatalf("decodeEntry failed: %v", err)
			}
			if len(vector) != len(tt.vector) {
				t.Fatalf("vector length: got %d, want %d", len(vector), len(tt.vector))
			}
			for i := range vector {
				if vector[i] != tt.vector[i] {
					t.Errorf("vector[%d]: got %v, want %v", i, vector[i], tt.vector[i])
				}
			}
			if (embedded == nil) != (tt.embedded == nil) || string(embedded) != string(tt.embedded) {
				t.Errorf("payload: got %q, want %q", embedded, tt.embedded)
			}
		})
	}

	for _, corrupt := range [][]byte{nil, {8, 1, 2}, {0, 7}, {0}} {
		if _, _, err := decodeEntry(corrupt); !errors.Is(err, embedstore.ErrDecode) {
			t.Errorf("expected ErrDecode decoding %v, got %v", corrupt, err)
		}
	}
}

func TestDecodeEntry_OversizedLength(t *testing.T) {
	// A length of MaxUint64 must not wrap around the bounds check.
	for _, v := range [][]byte{
		append(binary.AppendUvarint(nil, math.MaxUint64), 0),
		append(binary.AppendUvarint(nil, math.MaxUint64), 1, 2, 3, 4, 5),
		append(binary.AppendUvarint(nil, math.MaxUint64-1), 0, 0),
	} {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("decodeEntry panicked on %v: %v", v, r)
				}
			}()
			if _, _, err := decodeEntry(v); !errors.Is(err, embedstore.ErrDecode) {
				t.Errorf("expected ErrDecode for %v, got %v", v, err)
			}
		}()
	}
}

func TestProvider_CorruptEntry(t *testing.T) {
	db := setupTestDB(t)
	p := New(db, "embeddings")
	ctx := context.Background()

	bad := append(binary.AppendUvarint(nil, math.MaxUint64), 0)
	err := db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("embeddings"))
		if err != nil {
			return err
		}
		return b.Put([]byte("bad"), bad)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if _, err := p.Get(ctx, "bad"); !errors.Is(err, embedstore.ErrDecode) {
		t.Errorf("Get: expected ErrDecode, got %v", err)
	}
	if _, err := p.Search(ctx, []float32{1}, 1, 0); !errors.Is(err, embedstore.ErrDecode) {
		t.Errorf("Search: expected ErrDecode, got %v", err)
	}
}

func TestProvider_Dimension(t *testing.T) {
	p := New(setupTestDB(t), "embeddings")
	ctx := context.Background()

	dim, err := p.Dimension(ctx)
	if err != nil || dim != 0 {
		t.Fatalf("empty bucket: got %d, %v", dim, err)
	}
	if err := p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 2, 3}}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	dim, err = p.Dimension(ctx)
	if err != nil || dim != 3 {
		t.Errorf("expected 3, got %d, %v", dim, err)
	}
}
