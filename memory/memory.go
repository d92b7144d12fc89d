// Package memory provides the reference in-process embedstore Provider.
//
// Search is an exact brute-force cosine scan. Writes hold an exclusive lock
// for the whole batch, so batches are all-or-nothing and a search never sees
// a partially written entry. Updates of absent ids fail with ErrNotFound
// (MissingFail) and leave the store unchanged. Ties in score are broken by
// first insertion order; overwriting an id keeps its original position.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zoobzio/embedstore"
)

type entry struct {
	seq      uint64
	vector   []float32
	embedded []byte
}

// Provider implements embedstore.Provider in memory.
type Provider struct {
	entries map[string]*entry
	seq     uint64
	mu      sync.RWMutex
}

// New creates an empty in-memory provider.
func New() *Provider {
	return &Provider{
		entries: make(map[string]*entry),
	}
}

// Capabilities reports full support with MissingFail updates.
func (p *Provider) Capabilities() embedstore.Capabilities {
	return embedstore.Capabilities{
		Supported:       embedstore.CapabilityAll,
		OnMissingUpdate: embedstore.MissingFail,
	}
}

// Upsert stores the records, replacing entries with the same ids.
func (p *Provider) Upsert(_ context.Context, records []embedstore.VectorRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range records {
		p.put(r, true)
	}
	return nil
}

// Update replaces vector and payload of existing entries.
// Fails with ErrNotFound without writing if any id is absent.
func (p *Provider) Update(_ context.Context, records []embedstore.VectorRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireAll(records); err != nil {
		return err
	}
	for _, r := range records {
		p.put(r, true)
	}
	return nil
}

// UpdateVectors replaces the vectors of existing entries, keeping payloads.
// Fails with ErrNotFound without writing if any id is absent.
func (p *Provider) UpdateVectors(_ context.Context, records []embedstore.VectorRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireAll(records); err != nil {
		return err
	}
	for _, r := range records {
		p.put(r, false)
	}
	return nil
}

// Delete removes entries by id. Absent ids are ignored.
func (p *Provider) Delete(_ context.Context, ids []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range ids {
		delete(p.entries, id)
	}
	return nil
}

// Get retrieves a copy of the entry under id.
func (p *Provider) Get(_ context.Context, id string) (*embedstore.VectorResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entries[id]
	if !ok {
		return nil, embedstore.ErrNotFound
	}
	return &embedstore.VectorResult{
		ID:       id,
		Vector:   slices.Clone(e.vector),
		Embedded: slices.Clone(e.embedded),
	}, nil
}

// Search scans every entry and returns the k most relevant.
func (p *Provider) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]embedstore.VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	type ordered struct {
		seq    uint64
		record embedstore.VectorRecord
	}
	snapshot := make([]ordered, 0, len(p.entries))
	for id, e := range p.entries {
		// Slices are replaced, never mutated, so sharing them with the ranker is safe.
		snapshot = append(snapshot, ordered{
			seq:    e.seq,
			record: embedstore.VectorRecord{ID: id, Vector: e.vector, Embedded: e.embedded},
		})
	}
	p.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b ordered) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	candidates := make([]embedstore.VectorRecord, len(snapshot))
	for i, o := range snapshot {
		candidates[i] = o.record
	}
	return embedstore.Rank(vector, candidates, k, minScore)
}

// Dimension returns the length of the stored vectors, or 0 when empty.
func (p *Provider) Dimension(_ context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.entries {
		return len(e.vector), nil
	}
	return 0, nil
}

// Flush is a no-op; writes are visible as soon as they return.
func (p *Provider) Flush(_ context.Context) error {
	return nil
}

// Len returns the number of stored entries.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// put writes r, copying its slices. Caller must hold the write lock.
func (p *Provider) put(r embedstore.VectorRecord, withEmbedded bool) {
	e, ok := p.entries[r.ID]
	if !ok {
		p.seq++
		e = &entry{seq: p.seq}
		p.entries[r.ID] = e
	}
	e.vector = slices.Clone(r.Vector)
	if withEmbedded {
		e.embedded = slices.Clone(r.Embedded)
	}
}

// requireAll returns ErrNotFound for the first absent id. Caller must hold the lock.
func (p *Provider) requireAll(records []embedstore.VectorRecord) error {
	for _, r := range records {
		if _, ok := p.entries[r.ID]; !ok {
			return fmt.Errorf("%w: %s", embedstore.ErrNotFound, r.ID)
		}
	}
	return nil
}

// Ensure Provider implements embedstore.Provider.
var _ embedstore.Provider = (*Provider)(nil)
