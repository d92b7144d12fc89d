package embedstore

// Match is a single similarity search result.
type Match[T any] struct {
	// Score is the relevance of the entry to the reference embedding in [0, 1].
	Score float64

	// ID is the id of the matched entry.
	ID string

	// Embedding is the stored embedding of the matched entry.
	Embedding Embedding

	// Embedded is the entry's payload, nil when the entry has none.
	Embedded *T
}

// Entry is a stored embedding with its id and optional payload.
type Entry[T any] struct {
	ID        string
	Embedding Embedding
	Embedded  *T
}
