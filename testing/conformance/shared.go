// Package conformance provides the minimum test suite every embedstore
// Provider must pass, independent of dimensionality or storage medium.
package conformance

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/zoobzio/embedstore"
)

// TextSegment is the payload used by the conformance suite.
type TextSegment struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TestContext holds the provider factory for a backend under test.
type TestContext struct {
	// NewProvider returns an empty provider. It is called once per test and
	// should register any teardown with t.Cleanup.
	NewProvider func(t *testing.T) embedstore.Provider
}

// RunConformance runs every conformance suite against the given context.
func RunConformance(t *testing.T, tc *TestContext) {
	t.Run("Add", func(t *testing.T) { RunAddTests(t, tc) })
	t.Run("Batch", func(t *testing.T) { RunBatchTests(t, tc) })
	t.Run("Search", func(t *testing.T) { RunSearchTests(t, tc) })
	t.Run("Update", func(t *testing.T) { RunUpdateTests(t, tc) })
	t.Run("Delete", func(t *testing.T) { RunDeleteTests(t, tc) })
	t.Run("Precondition", func(t *testing.T) { RunPreconditionTests(t, tc) })
}

// RunAddTests runs the single-entry insertion suite.
func RunAddTests(t *testing.T, tc *TestContext) {
	t.Run("AddGeneratesID", func(t *testing.T) { testAddGeneratesID(t, tc) })
	t.Run("AddEmbeddedRoundTrip", func(t *testing.T) { testAddEmbeddedRoundTrip(t, tc) })
	t.Run("AddWithID", func(t *testing.T) { testAddWithID(t, tc) })
	t.Run("AddEmbeddedWithID", func(t *testing.T) { testAddEmbeddedWithID(t, tc) })
	t.Run("AddOverwrites", func(t *testing.T) { testAddOverwrites(t, tc) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, tc) })
}

// RunBatchTests runs the batch operation suite.
func RunBatchTests(t *testing.T, tc *TestContext) {
	t.Run("AddAll", func(t *testing.T) { testAddAll(t, tc) })
	t.Run("AddAllEmbedded", func(t *testing.T) { testAddAllEmbedded(t, tc) })
	t.Run("AddAllWithIDs", func(t *testing.T) { testAddAllWithIDs(t, tc) })
	t.Run("BatchLengthMismatch", func(t *testing.T) { testBatchLengthMismatch(t, tc) })
	t.Run("UpdateAll", func(t *testing.T) { testUpdateAll(t, tc) })
	t.Run("DeleteAll", func(t *testing.T) { testDeleteAll(t, tc) })
}

// RunSearchTests runs the similarity search suite.
func RunSearchTests(t *testing.T, tc *TestContext) {
	t.Run("Ranking", func(t *testing.T) { testRanking(t, tc) })
	t.Run("MaxResultsTruncates", func(t *testing.T) { testMaxResultsTruncates(t, tc) })
	t.Run("ZeroMaxResults", func(t *testing.T) { testZeroMaxResults(t, tc) })
	t.Run("MinScoreOne", func(t *testing.T) { testMinScoreOne(t, tc) })
	t.Run("MinScoreThreshold", func(t *testing.T) { testMinScoreThreshold(t, tc) })
	t.Run("DeterministicTies", func(t *testing.T) { testDeterministicTies(t, tc) })
	t.Run("ScoreRange", func(t *testing.T) { testScoreRange(t, tc) })
	t.Run("ReferenceDimensionMismatch", func(t *testing.T) { testReferenceDimensionMismatch(t, tc) })
}

// RunUpdateTests runs the update suite, including the provider's declared missing-id policy.
func RunUpdateTests(t *testing.T, tc *TestContext) {
	t.Run("UpdateEmbedded", func(t *testing.T) { testUpdateEmbedded(t, tc) })
	t.Run("UpdateKeepsPayload", func(t *testing.T) { testUpdateKeepsPayload(t, tc) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, tc) })
}

// RunDeleteTests runs the deletion suite.
func RunDeleteTests(t *testing.T, tc *TestContext) {
	t.Run("Delete", func(t *testing.T) { testDelete(t, tc) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, tc) })
}

// RunPreconditionTests runs the input validation suite.
func RunPreconditionTests(t *testing.T, tc *TestContext) {
	t.Run("BlankID", func(t *testing.T) { testBlankID(t, tc) })
	t.Run("EmptyEmbedding", func(t *testing.T) { testEmptyEmbedding(t, tc) })
	t.Run("DimensionMismatch", func(t *testing.T) { testDimensionMismatch(t, tc) })
	t.Run("DimensionSurvivesNewStore", func(t *testing.T) { testDimensionSurvivesNewStore(t, tc) })
}

// --- helpers ---

func newStore(t *testing.T, tc *TestContext) *embedstore.Store[TextSegment] {
	t.Helper()
	return embedstore.New[TextSegment](tc.NewProvider(t))
}

func vec(values ...float32) embedstore.Embedding {
	return embedstore.NewEmbedding(values...)
}

func await(t *testing.T, store *embedstore.Store[TextSegment]) {
	t.Helper()
	if err := store.AwaitPersisted(context.Background()); err != nil {
		t.Fatalf("AwaitPersisted failed: %v", err)
	}
}

func find(t *testing.T, store *embedstore.Store[TextSegment], ref embedstore.Embedding, k int) []embedstore.Match[TextSegment] {
	t.Helper()
	matches, err := store.FindRelevant(context.Background(), ref, k)
	if err != nil {
		t.Fatalf("FindRelevant failed: %v", err)
	}
	return matches
}

// assertTopMatch verifies exactly one entry scores near 1.0 against ref and
// that it is id, stored with ref as its embedding.
func assertTopMatch(t *testing.T, store *embedstore.Store[TextSegment], ref embedstore.Embedding, id string) embedstore.Match[TextSegment] {
	t.Helper()
	matches, err := store.FindRelevantWithMinScore(context.Background(), ref, 10, 0.99)
	if err != nil {
		t.Fatalf("FindRelevantWithMinScore failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	assertNearOne(t, m.Score)
	if m.ID != id {
		t.Errorf("expected id %q, got %q", id, m.ID)
	}
	if !m.Embedding.Equal(ref) {
		t.Errorf("expected embedding %v, got %v", ref.Vector(), m.Embedding.Vector())
	}
	return m
}

func assertNearOne(t *testing.T, score float64) {
	t.Helper()
	if math.Abs(score-1) > 0.01 {
		t.Errorf("expected score within 1%% of 1.0, got %v", score)
	}
}

func assertEmbedded(t *testing.T, got *TextSegment, want TextSegment) {
	t.Helper()
	if got == nil {
		t.Fatal("expected embedded payload, got nil")
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("expected embedded %+v, got %+v", want, *got)
	}
}

func skipUnless(t *testing.T, store *embedstore.Store[TextSegment], c embedstore.Capability) {
	t.Helper()
	if !store.Supports(c) {
		t.Skipf("provider does not support %s", c)
	}
}

// --- add ---

func testAddGeneratesID(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	e := vec(0.2, 0.5, 0.8)
	id, err := store.Add(ctx, e)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-blank id")
	}
	await(t, store)

	matches := find(t, store, e, 1)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	assertNearOne(t, matches[0].Score)
	if matches[0].ID != id {
		t.Errorf("expected id %q, got %q", id, matches[0].ID)
	}
	if matches[0].Embedded != nil {
		t.Errorf("expected no payload, got %+v", *matches[0].Embedded)
	}
}

func testAddEmbeddedRoundTrip(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityEmbedded)

	segment := TextSegment{Text: "hello", Metadata: map[string]string{"test-key": "test-value"}}
	e := vec(0.1, 0.9, 0.3)
	id, err := store.AddEmbedded(ctx, e, segment)
	if err != nil {
		t.Fatalf("AddEmbedded failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-blank id")
	}
	await(t, store)

	m := assertTopMatch(t, store, e, id)
	assertEmbedded(t, m.Embedded, segment)
}

func testAddWithID(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	id := "6c9a1f0e-4f7c-4f0e-9d55-0b8c2b7e1a01"

	err := store.AddWithID(ctx, id, vec(1, 2, 3))
	if !store.Supports(embedstore.CapabilityExplicitID) {
		if !errors.Is(err, embedstore.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatalf("AddWithID failed: %v", err)
	}
	await(t, store)
	assertTopMatch(t, store, vec(1, 2, 3), id)
}

func testAddEmbeddedWithID(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	id := "2f1d7f7a-8a43-4b0b-a3c6-1e6b5f2c9d02"
	segment := TextSegment{Text: "explicit"}

	err := store.AddEmbeddedWithID(ctx, id, vec(3, 2, 1), segment)
	if !store.Supports(embedstore.CapabilityExplicitID | embedstore.CapabilityEmbedded) {
		if !errors.Is(err, embedstore.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatalf("AddEmbeddedWithID failed: %v", err)
	}
	await(t, store)

	m := assertTopMatch(t, store, vec(3, 2, 1), id)
	assertEmbedded(t, m.Embedded, segment)

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	assertEmbedded(t, got.Embedded, segment)
}

func testAddOverwrites(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityExplicitID|embedstore.CapabilityEmbedded)
	id := "9b0c7c1e-5a2d-4e8f-8f1a-3d4e5f6a7b03"

	if err := store.AddEmbeddedWithID(ctx, id, vec(1, 0, 0), TextSegment{Text: "first"}); err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if err := store.AddEmbeddedWithID(ctx, id, vec(0, 0, 1), TextSegment{Text: "second"}); err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	await(t, store)

	m := assertTopMatch(t, store, vec(0, 0, 1), id)
	assertEmbedded(t, m.Embedded, TextSegment{Text: "second"})
}

func testGetNotFound(t *testing.T, tc *TestContext) {
	store := newStore(t, tc)
	_, err := store.Get(context.Background(), "00000000-0000-4000-8000-000000000000")
	if !errors.Is(err, embedstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// --- batch ---

func testAddAll(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	embeddings := []embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0), vec(0, 0, 1)}
	ids, err := store.AddAll(ctx, embeddings)
	if err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	if len(ids) != len(embeddings) {
		t.Fatalf("expected %d ids, got %d", len(embeddings), len(ids))
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if id == "" || seen[id] {
			t.Fatalf("expected distinct non-blank ids, got %v", ids)
		}
		seen[id] = true
	}
	await(t, store)

	for i, e := range embeddings {
		matches := find(t, store, e, 1)
		if len(matches) != 1 || matches[0].ID != ids[i] {
			t.Errorf("position %d: expected top match %q, got %+v", i, ids[i], matches)
		}
	}
}

func testAddAllEmbedded(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityEmbedded)

	embeddings := []embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0)}
	segments := []TextSegment{{Text: "x"}, {Text: "y"}}
	ids, err := store.AddAllEmbedded(ctx, embeddings, segments)
	if err != nil {
		t.Fatalf("AddAllEmbedded failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	await(t, store)

	for i, e := range embeddings {
		matches := find(t, store, e, 1)
		if len(matches) != 1 {
			t.Fatalf("expected 1 match, got %d", len(matches))
		}
		if matches[0].ID != ids[i] {
			t.Errorf("expected id %q, got %q", ids[i], matches[0].ID)
		}
		assertEmbedded(t, matches[0].Embedded, segments[i])
	}
}

func testAddAllWithIDs(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityExplicitID|embedstore.CapabilityEmbedded)

	ids := []string{"1d4b3a8e-0c6f-4d2a-9b1e-7f5c3a2d1e04", "8e2f6c4a-1b3d-4f5e-a7c9-0d2b4f6a8c05"}
	embeddings := []embedstore.Embedding{vec(1, 1, 0), vec(0, 1, 1)}
	segments := []TextSegment{{Text: "left"}, {Text: "right"}}

	got, err := store.AddAllWithIDs(ctx, ids, embeddings, segments)
	if err != nil {
		t.Fatalf("AddAllWithIDs failed: %v", err)
	}
	if !reflect.DeepEqual(got, ids) {
		t.Errorf("expected ids %v, got %v", ids, got)
	}
	await(t, store)

	m := assertTopMatch(t, store, vec(1, 1, 0), ids[0])
	assertEmbedded(t, m.Embedded, segments[0])
}

func testBatchLengthMismatch(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityExplicitID|embedstore.CapabilityEmbedded)

	_, err := store.AddAllEmbedded(ctx, []embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0)}, []TextSegment{{Text: "only"}})
	if !errors.Is(err, embedstore.ErrBatchLength) {
		t.Errorf("expected ErrBatchLength, got %v", err)
	}

	_, err = store.AddAllWithIDs(ctx, []string{"a"}, []embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0)}, nil)
	if !errors.Is(err, embedstore.ErrBatchLength) {
		t.Errorf("expected ErrBatchLength, got %v", err)
	}
	if !errors.Is(err, embedstore.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	await(t, store)

	if matches := find(t, store, vec(1, 0, 0), 10); len(matches) != 0 {
		t.Errorf("expected nothing written, got %d matches", len(matches))
	}
}

func testUpdateAll(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityEmbedded)

	ids, err := store.AddAllEmbedded(ctx,
		[]embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0)},
		[]TextSegment{{Text: "a"}, {Text: "b"}},
	)
	if err != nil {
		t.Fatalf("AddAllEmbedded failed: %v", err)
	}
	await(t, store)

	updated := []TextSegment{{Text: "a2"}, {Text: "b2"}}
	err = store.UpdateAll(ctx, ids, []embedstore.Embedding{vec(0, 0, 1), vec(1, 1, 0)}, updated)
	if !store.Supports(embedstore.CapabilityUpdate) {
		if !errors.Is(err, embedstore.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatalf("UpdateAll failed: %v", err)
	}
	await(t, store)

	m := find(t, store, vec(0, 0, 1), 1)
	if len(m) != 1 || m[0].ID != ids[0] {
		t.Fatalf("expected %q for updated vector, got %+v", ids[0], m)
	}
	assertNearOne(t, m[0].Score)
	assertEmbedded(t, m[0].Embedded, updated[0])

	if err := store.UpdateAll(ctx, ids, []embedstore.Embedding{vec(1, 0, 0)}, updated); !errors.Is(err, embedstore.ErrBatchLength) {
		t.Errorf("expected ErrBatchLength, got %v", err)
	}
}

func testDeleteAll(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	ids, err := store.AddAll(ctx, []embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0), vec(0, 0, 1)})
	if err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	await(t, store)

	err = store.DeleteAll(ctx, ids[:2])
	if !store.Supports(embedstore.CapabilityDelete) {
		if !errors.Is(err, embedstore.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	await(t, store)

	matches := find(t, store, vec(1, 1, 1), 10)
	if len(matches) != 1 || matches[0].ID != ids[2] {
		t.Errorf("expected only %q to remain, got %+v", ids[2], matches)
	}
}

// --- search ---

func testRanking(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	// Decreasing cosine similarity to (1, 0, 0), inserted out of order.
	far, err := store.Add(ctx, vec(0.2, 1, 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	near, err := store.Add(ctx, vec(1, 0.1, 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	mid, err := store.Add(ctx, vec(1, 1, 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	await(t, store)

	matches := find(t, store, vec(1, 0, 0), 3)
	want := []string{near, mid, far}
	if len(matches) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(matches))
	}
	for i, id := range want {
		if matches[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, matches[i].ID)
		}
		if i > 0 && matches[i].Score > matches[i-1].Score {
			t.Errorf("scores not descending at %d: %v > %v", i, matches[i].Score, matches[i-1].Score)
		}
		if matches[i].Score < 0 || matches[i].Score > 1 {
			t.Errorf("score out of [0,1]: %v", matches[i].Score)
		}
	}
}

func testMaxResultsTruncates(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	embeddings := []embedstore.Embedding{vec(1, 0, 0), vec(1, 0.1, 0), vec(1, 0.2, 0), vec(1, 0.3, 0), vec(1, 0.4, 0)}
	if _, err := store.AddAll(ctx, embeddings); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	await(t, store)

	if matches := find(t, store, vec(1, 0, 0), 2); len(matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(matches))
	}
}

func testZeroMaxResults(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	if _, err := store.Add(ctx, vec(1, 0, 0)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	await(t, store)

	for _, k := range []int{0, -1} {
		matches := find(t, store, vec(1, 0, 0), k)
		if len(matches) != 0 {
			t.Errorf("maxResults %d: expected no matches, got %d", k, len(matches))
		}
	}
}

func testMinScoreOne(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	ids, err := store.AddAll(ctx, []embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0), vec(0.9, 0.1, 0)})
	if err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	await(t, store)

	matches, err := store.FindRelevantWithMinScore(ctx, vec(1, 0, 0), 10, 1.0)
	if err != nil {
		t.Fatalf("FindRelevantWithMinScore failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != ids[0] {
		t.Errorf("expected only exact-direction match %q, got %+v", ids[0], matches)
	}
}

func testMinScoreThreshold(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityExplicitID)

	if _, err := store.AddAllWithIDs(ctx, []string{"a", "b"}, []embedstore.Embedding{vec(1, 0, 0), vec(0, 1, 0)}, nil); err != nil {
		t.Fatalf("AddAllWithIDs failed: %v", err)
	}
	await(t, store)

	matches, err := store.FindRelevantWithMinScore(ctx, vec(1, 0, 0), 2, 0.9)
	if err != nil {
		t.Fatalf("FindRelevantWithMinScore failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("expected id a, got %q", matches[0].ID)
	}
	assertNearOne(t, matches[0].Score)
}

func testDeterministicTies(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	if _, err := store.AddAll(ctx, []embedstore.Embedding{vec(0, 1, 0), vec(0, 2, 0), vec(0, 0, 3), vec(0, 3, 0)}); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}
	await(t, store)

	first := find(t, store, vec(0, 1, 0), 4)
	for range 5 {
		again := find(t, store, vec(0, 1, 0), 4)
		if len(again) != len(first) {
			t.Fatalf("expected %d matches, got %d", len(first), len(again))
		}
		for i := range first {
			if again[i].ID != first[i].ID {
				t.Fatalf("tie order changed at %d: %q then %q", i, first[i].ID, again[i].ID)
			}
		}
	}
}

func testScoreRange(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	for _, minScore := range []float64{-0.1, 1.5, math.NaN()} {
		_, err := store.FindRelevantWithMinScore(ctx, vec(1, 0, 0), 1, minScore)
		if !errors.Is(err, embedstore.ErrScoreRange) {
			t.Errorf("minScore %v: expected ErrScoreRange, got %v", minScore, err)
		}
	}
}

func testReferenceDimensionMismatch(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	if _, err := store.Add(ctx, vec(1, 0, 0)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	_, err := store.FindRelevant(ctx, vec(1, 0), 1)
	if !errors.Is(err, embedstore.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

// --- update ---

func testUpdateEmbedded(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityEmbedded)

	segment := TextSegment{Text: "hello", Metadata: map[string]string{"test-key": "test-value"}}
	original := vec(1, 0, 0)
	id, err := store.AddEmbedded(ctx, original, segment)
	if err != nil {
		t.Fatalf("AddEmbedded failed: %v", err)
	}
	await(t, store)
	assertTopMatch(t, store, original, id)

	updatedSegment := TextSegment{Text: "Hello World", Metadata: map[string]string{"test-key": "test-updated-value"}}
	updated := vec(0, 1, 0)
	err = store.UpdateEmbedded(ctx, id, updated, updatedSegment)
	if !store.Supports(embedstore.CapabilityUpdate) {
		if !errors.Is(err, embedstore.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatalf("UpdateEmbedded failed: %v", err)
	}
	await(t, store)

	m := assertTopMatch(t, store, updated, id)
	assertEmbedded(t, m.Embedded, updatedSegment)
	if m.Embedded.Metadata["test-key"] != "test-updated-value" {
		t.Errorf("expected updated metadata, got %q", m.Embedded.Metadata["test-key"])
	}

	old := find(t, store, original, 1)
	if len(old) == 1 && old[0].ID == id && old[0].Score > 0.99 {
		t.Errorf("old embedding still matches %q with score %v", id, old[0].Score)
	}
}

func testUpdateKeepsPayload(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityEmbedded)

	segment := TextSegment{Text: "kept"}
	id, err := store.AddEmbedded(ctx, vec(1, 0, 0), segment)
	if err != nil {
		t.Fatalf("AddEmbedded failed: %v", err)
	}
	await(t, store)

	err = store.Update(ctx, id, vec(0, 0, 1))
	if !store.Supports(embedstore.CapabilityUpdateEmbedding) {
		if !errors.Is(err, embedstore.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	await(t, store)

	m := assertTopMatch(t, store, vec(0, 0, 1), id)
	assertEmbedded(t, m.Embedded, segment)
}

func testUpdateMissing(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityUpdate|embedstore.CapabilityEmbedded)

	// Fix the dimension so the update is validated like any other write.
	if _, err := store.Add(ctx, vec(0, 0, 1)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	await(t, store)

	missing := "4a5b6c7d-8e9f-4a0b-9c1d-2e3f4a5b6c06"
	segment := TextSegment{Text: "ghost"}
	err := store.UpdateEmbedded(ctx, missing, vec(1, 0, 0), segment)
	await(t, store)

	_, getErr := store.Get(ctx, missing)
	switch store.OnMissingUpdate() {
	case embedstore.MissingFail:
		if !errors.Is(err, embedstore.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if !errors.Is(getErr, embedstore.ErrNotFound) {
			t.Errorf("expected no entry after failed update, got %v", getErr)
		}
	case embedstore.MissingUpsert:
		if err != nil {
			t.Fatalf("expected upsert, got %v", err)
		}
		m := assertTopMatch(t, store, vec(1, 0, 0), missing)
		assertEmbedded(t, m.Embedded, segment)
	case embedstore.MissingIgnore:
		if err != nil {
			t.Errorf("expected update to be ignored, got %v", err)
		}
		if !errors.Is(getErr, embedstore.ErrNotFound) {
			t.Errorf("expected no entry after ignored update, got %v", getErr)
		}
	default:
		t.Fatalf("unknown missing-update policy %v", store.OnMissingUpdate())
	}
}

// --- delete ---

func testDelete(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityEmbedded)

	hello := TextSegment{Text: "hello"}
	world := TextSegment{Text: "world"}
	helloVec, worldVec := vec(1, 0.2, 0), vec(0, 0.2, 1)

	id, err := store.AddEmbedded(ctx, helloVec, hello)
	if err != nil {
		t.Fatalf("AddEmbedded failed: %v", err)
	}
	worldID, err := store.AddEmbedded(ctx, worldVec, world)
	if err != nil {
		t.Fatalf("AddEmbedded failed: %v", err)
	}
	await(t, store)

	matches, err := store.FindRelevantWithMinScore(ctx, helloVec, 10, 0.99)
	if err != nil {
		t.Fatalf("FindRelevantWithMinScore failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != id {
		t.Fatalf("expected %q before delete, got %+v", id, matches)
	}
	assertEmbedded(t, matches[0].Embedded, hello)

	err = store.Delete(ctx, id)
	if !store.Supports(embedstore.CapabilityDelete) {
		if !errors.Is(err, embedstore.ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got %v", err)
		}
		return
	}
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	await(t, store)

	for _, ref := range []embedstore.Embedding{helloVec, worldVec, vec(1, 1, 1)} {
		for _, m := range find(t, store, ref, 10) {
			if m.ID == id {
				t.Errorf("deleted id %q returned for %v", id, ref.Vector())
			}
		}
	}
	assertTopMatch(t, store, worldVec, worldID)
}

func testDeleteIdempotent(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityDelete)

	keep, err := store.Add(ctx, vec(0, 1, 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	gone, err := store.Add(ctx, vec(1, 0, 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	await(t, store)

	for range 2 {
		if err := store.Delete(ctx, gone); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}
	if err := store.Delete(ctx, "7b8c9d0e-1f2a-4b3c-8d4e-5f6a7b8c9d07"); err != nil {
		t.Errorf("Delete of absent id failed: %v", err)
	}
	if err := store.DeleteAll(ctx, []string{gone, "never-added"}); err != nil {
		t.Errorf("DeleteAll of absent ids failed: %v", err)
	}
	await(t, store)

	assertTopMatch(t, store, vec(0, 1, 0), keep)
}

// --- preconditions ---

func testBlankID(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)
	skipUnless(t, store, embedstore.CapabilityExplicitID)

	for _, id := range []string{"", "   "} {
		if err := store.AddWithID(ctx, id, vec(1, 0, 0)); !errors.Is(err, embedstore.ErrBlankID) {
			t.Errorf("id %q: expected ErrBlankID, got %v", id, err)
		}
	}
}

func testEmptyEmbedding(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	if _, err := store.Add(ctx, embedstore.Embedding{}); !errors.Is(err, embedstore.ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func testDimensionMismatch(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	store := newStore(t, tc)

	id, err := store.Add(ctx, vec(1, 0, 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Add(ctx, vec(1, 0)); !errors.Is(err, embedstore.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := store.AddAll(ctx, []embedstore.Embedding{vec(0, 1, 0), vec(0, 1)}); !errors.Is(err, embedstore.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch for batch, got %v", err)
	}
	await(t, store)

	matches := find(t, store, vec(1, 1, 1), 10)
	if len(matches) != 1 || matches[0].ID != id {
		t.Errorf("expected store unchanged, got %+v", matches)
	}
}

func testDimensionSurvivesNewStore(t *testing.T, tc *TestContext) {
	ctx := context.Background()
	provider := tc.NewProvider(t)
	first := embedstore.New[TextSegment](provider)

	id, err := first.Add(ctx, vec(1, 0, 0))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	await(t, first)

	second := embedstore.New[TextSegment](provider)
	if _, err := second.Add(ctx, vec(1, 0, 0, 0)); !errors.Is(err, embedstore.ErrDimensionMismatch) {
		t.Errorf("Add: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := second.FindRelevant(ctx, vec(1, 0, 0, 0), 1); !errors.Is(err, embedstore.ErrDimensionMismatch) {
		t.Errorf("FindRelevant: expected ErrDimensionMismatch, got %v", err)
	}
	if got := second.Dimension(); got != 3 {
		t.Errorf("expected dimension 3, got %d", got)
	}
	assertTopMatch(t, second, vec(1, 0, 0), id)
}
