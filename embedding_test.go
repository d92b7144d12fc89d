package embedstore

import (
	"errors"
	"testing"
)

func TestNewEmbedding_Copies(t *testing.T) {
	values := []float32{1, 2, 3}
	e := NewEmbedding(values...)
	values[0] = 99

	if e.Vector()[0] != 1 {
		t.Error("NewEmbedding should copy its input")
	}

	out := e.Vector()
	out[1] = 99
	if e.Vector()[1] != 2 {
		t.Error("Vector should return a copy")
	}
}

func TestEmbedding_Dimension(t *testing.T) {
	if (Embedding{}).Dimension() != 0 {
		t.Error("zero value should be empty")
	}
	if NewEmbedding(1, 2).Dimension() != 2 {
		t.Error("expected dimension 2")
	}
}

func TestEmbedding_Equal(t *testing.T) {
	a := NewEmbedding(1, 2, 3)
	if !a.Equal(NewEmbedding(1, 2, 3)) {
		t.Error("expected equal")
	}
	if a.Equal(NewEmbedding(1, 2)) {
		t.Error("different lengths should not be equal")
	}
	if a.Equal(NewEmbedding(1, 2, 4)) {
		t.Error("different values should not be equal")
	}
}

func TestCosineSimilarity(t *testing.T) {
	cos, err := CosineSimilarity(NewEmbedding(1, 0), NewEmbedding(0, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cos != 0 {
		t.Errorf("expected 0, got %v", cos)
	}
	if RelevanceScore(cos) != 0.5 {
		t.Errorf("expected relevance 0.5, got %v", RelevanceScore(cos))
	}

	if _, err := CosineSimilarity(NewEmbedding(1), NewEmbedding(1, 2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}
