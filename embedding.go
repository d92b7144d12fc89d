package embedstore

import "slices"

// Embedding is an immutable fixed-length vector.
// The zero value is an empty embedding, which every store rejects.
type Embedding struct {
	vector []float32
}

// NewEmbedding creates an Embedding holding a copy of values.
func NewEmbedding(values ...float32) Embedding {
	return Embedding{vector: slices.Clone(values)}
}

// Vector returns a copy of the embedding's values.
func (e Embedding) Vector() []float32 {
	return slices.Clone(e.vector)
}

// Dimension returns the number of values.
func (e Embedding) Dimension() int {
	return len(e.vector)
}

// Equal reports whether e and other hold the same values in the same order.
func (e Embedding) Equal(other Embedding) bool {
	return slices.Equal(e.vector, other.vector)
}

// raw exposes the backing slice to package internals that copy before handing it on.
func (e Embedding) raw() []float32 {
	return e.vector
}
