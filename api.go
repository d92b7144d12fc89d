// Package embedstore provides a provider-agnostic embedding store.
// A Store pairs fixed-dimension embeddings with an opaque embedded payload
// and a stable id; providers hold the entries and answer similarity queries.
package embedstore

import (
	"context"

	"github.com/zoobzio/embedstore/internal/shared"
)

// Semantic errors for store operations (re-exported from internal/shared).
var (
	ErrNotFound          = shared.ErrNotFound
	ErrUnsupported       = shared.ErrUnsupported
	ErrInvalidInput      = shared.ErrInvalidInput
	ErrBackend           = shared.ErrBackend
	ErrEncode            = shared.ErrEncode
	ErrDecode            = shared.ErrDecode
	ErrBlankID           = shared.ErrBlankID
	ErrEmptyEmbedding    = shared.ErrEmptyEmbedding
	ErrBatchLength       = shared.ErrBatchLength
	ErrScoreRange        = shared.ErrScoreRange
	ErrDimensionMismatch = shared.ErrDimensionMismatch
)

// VectorRecord is re-exported from internal/shared for the public API.
type VectorRecord = shared.VectorRecord

// VectorResult is re-exported from internal/shared for the public API.
type VectorResult = shared.VectorResult

// Capability is re-exported from internal/shared for the public API.
type Capability = shared.Capability

// Capabilities is re-exported from internal/shared for the public API.
type Capabilities = shared.Capabilities

// MissingPolicy is re-exported from internal/shared for the public API.
type MissingPolicy = shared.MissingPolicy

// Capability constants.
const (
	CapabilityExplicitID      = shared.CapabilityExplicitID
	CapabilityEmbedded        = shared.CapabilityEmbedded
	CapabilityUpdate          = shared.CapabilityUpdate
	CapabilityUpdateEmbedding = shared.CapabilityUpdateEmbedding
	CapabilityDelete          = shared.CapabilityDelete
	CapabilityAll             = shared.CapabilityAll
)

// Missing-update policies.
const (
	MissingFail   = shared.MissingFail
	MissingUpsert = shared.MissingUpsert
	MissingIgnore = shared.MissingIgnore
)

// Provider defines raw embedding storage operations.
// Implementations (memory, sqlite, bolt, redis, qdrant, pgvector) satisfy this interface.
//
// A Store validates every input before calling a provider, so providers may
// assume ids are non-blank, batches are aligned and vectors share one
// dimension. Providers own the atomicity of each entry: a search never
// observes half of a write.
type Provider interface {
	// Capabilities reports the optional operations this provider implements
	// and how it treats updates of ids it does not hold.
	Capabilities() Capabilities

	// Upsert stores the records, replacing any entries with the same ids.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Update replaces vector and payload of existing entries.
	// Missing ids are handled according to Capabilities().OnMissingUpdate.
	Update(ctx context.Context, records []VectorRecord) error

	// UpdateVectors replaces only the vectors of existing entries, keeping payloads.
	// Missing ids are handled according to Capabilities().OnMissingUpdate.
	UpdateVectors(ctx context.Context, records []VectorRecord) error

	// Delete removes entries by id. Absent ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Get retrieves an entry by id.
	// Returns ErrNotFound if the id does not exist.
	Get(ctx context.Context, id string) (*VectorResult, error)

	// Search returns at most k entries scoring at least minScore against
	// vector, highest score first, with a deterministic order for ties.
	Search(ctx context.Context, vector []float32, k int, minScore float64) ([]VectorResult, error)

	// Dimension reports the dimension of the vectors already stored, or 0
	// when the provider holds no entries and has no fixed dimension.
	Dimension(ctx context.Context) (int, error)

	// Flush blocks until every acknowledged write is visible to Search.
	// Providers with synchronous visibility return nil immediately.
	Flush(ctx context.Context) error
}
