package shared //nolint:revive // internal shared package is intentional

import "slices"

// VectorRecord is a raw entry handed to a provider for writing.
type VectorRecord struct {
	ID     string
	Vector []float32

	// Embedded holds the encoded payload. Nil means the entry has no payload.
	Embedded []byte
}

// VectorResult is a raw entry returned by a provider, scored when produced by a search.
type VectorResult struct {
	ID       string
	Vector   []float32
	Embedded []byte
	Score    float64
}

// Clone returns a deep copy of r.
func (r VectorRecord) Clone() VectorRecord {
	return VectorRecord{
		ID:       r.ID,
		Vector:   slices.Clone(r.Vector),
		Embedded: slices.Clone(r.Embedded),
	}
}

// Result converts r into an unscored VectorResult with copied slices.
func (r VectorRecord) Result() VectorResult {
	return VectorResult{
		ID:       r.ID,
		Vector:   slices.Clone(r.Vector),
		Embedded: slices.Clone(r.Embedded),
	}
}

// Capability is a bit set of optional provider operations.
type Capability uint8

const (
	// CapabilityExplicitID allows callers to choose entry ids.
	CapabilityExplicitID Capability = 1 << iota

	// CapabilityEmbedded allows storing an embedded payload next to a vector.
	CapabilityEmbedded

	// CapabilityUpdate allows replacing an entry's vector and payload.
	CapabilityUpdate

	// CapabilityUpdateEmbedding allows replacing only the vector, keeping the payload.
	CapabilityUpdateEmbedding

	// CapabilityDelete allows removing entries.
	CapabilityDelete
)

// CapabilityAll is every capability.
const CapabilityAll = CapabilityExplicitID | CapabilityEmbedded | CapabilityUpdate | CapabilityUpdateEmbedding | CapabilityDelete

// Has reports whether every capability in c2 is present in c.
func (c Capability) Has(c2 Capability) bool {
	return c&c2 == c2
}

// String returns a readable capability name for single-bit values.
func (c Capability) String() string {
	switch c {
	case CapabilityExplicitID:
		return "explicit-id"
	case CapabilityEmbedded:
		return "embedded"
	case CapabilityUpdate:
		return "update"
	case CapabilityUpdateEmbedding:
		return "update-embedding"
	case CapabilityDelete:
		return "delete"
	default:
		return "capabilities"
	}
}

// MissingPolicy describes how a provider treats an update of an id it does not hold.
type MissingPolicy uint8

const (
	// MissingFail rejects the update with ErrNotFound and writes nothing.
	MissingFail MissingPolicy = iota

	// MissingUpsert inserts the entry.
	MissingUpsert

	// MissingIgnore skips the entry without error.
	MissingIgnore
)

// String returns the policy name.
func (p MissingPolicy) String() string {
	switch p {
	case MissingFail:
		return "fail"
	case MissingUpsert:
		return "upsert"
	case MissingIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Capabilities describes what a provider supports.
type Capabilities struct {
	Supported       Capability
	OnMissingUpdate MissingPolicy
}
