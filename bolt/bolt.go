// Package bolt provides an embedstore Provider for BoltDB.
//
// Each entry is one key in a bucket, so a search never observes half of a
// write and every batch commits in a single Update transaction. Updates of
// absent ids insert them (MissingUpsert). Search scans the bucket in key
// order, which also breaks ties in score.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"time"

	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/internal/shared"
	"go.etcd.io/bbolt"
)

var errCorrupt = fmt.Errorf("%w: corrupt entry", embedstore.ErrDecode)

// Provider implements embedstore.Provider for BoltDB.
type Provider struct {
	db     *bbolt.DB
	bucket []byte
}

// New creates a Bolt provider with the given database and bucket name.
func New(db *bbolt.DB, bucket string) *Provider {
	return &Provider{
		db:     db,
		bucket: []byte(bucket),
	}
}

// Open opens (or creates) the Bolt file at path and returns a provider on bucket.
func Open(path, bucket string) (*Provider, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return New(db, bucket), nil
}

// Capabilities reports full support with MissingUpsert updates.
func (*Provider) Capabilities() embedstore.Capabilities {
	return embedstore.Capabilities{
		Supported:       embedstore.CapabilityAll,
		OnMissingUpdate: embedstore.MissingUpsert,
	}
}

// Upsert stores the records, replacing entries with the same ids.
func (p *Provider) Upsert(_ context.Context, records []embedstore.VectorRecord) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(p.bucket)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := b.Put([]byte(r.ID), encodeEntry(r.Vector, r.Embedded)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update replaces vector and payload of the entries; absent ids are inserted.
func (p *Provider) Update(ctx context.Context, records []embedstore.VectorRecord) error {
	return p.Upsert(ctx, records)
}

// UpdateVectors replaces the vectors of the entries, keeping payloads.
// Absent ids are inserted without a payload.
func (p *Provider) UpdateVectors(_ context.Context, records []embedstore.VectorRecord) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(p.bucket)
		if err != nil {
			return err
		}
		for _, r := range records {
			var embedded []byte
			if v := b.Get([]byte(r.ID)); v != nil {
				_, embedded, err = decodeEntry(v)
				if err != nil {
					return fmt.Errorf("entry %s: %w", r.ID, err)
				}
				// Put may reuse the page backing v.
				embedded = slices.Clone(embedded)
			}
			if err := b.Put([]byte(r.ID), encodeEntry(r.Vector, embedded)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes entries by id. Absent ids are ignored.
func (p *Provider) Delete(_ context.Context, ids []string) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(p.bucket)
		if b == nil {
			return nil
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves the entry under id.
func (p *Provider) Get(_ context.Context, id string) (*embedstore.VectorResult, error) {
	var result *embedstore.VectorResult
	err := p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(p.bucket)
		if b == nil {
			return embedstore.ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return embedstore.ErrNotFound
		}
		r, err := record(id, v)
		if err != nil {
			return err
		}
		res := r.Result()
		result = &res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Search scans the bucket in key order and returns the k most relevant entries.
// Respects context cancellation during iteration.
func (p *Provider) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]embedstore.VectorResult, error) {
	var candidates []embedstore.VectorRecord
	err := p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(p.bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for key, v := c.First(); key != nil; key, v = c.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r, err := record(string(key), v)
			if err != nil {
				return err
			}
			candidates = append(candidates, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embedstore.Rank(vector, candidates, k, minScore)
}

// Dimension returns the dimension of the first entry in key order, or 0 when
// the bucket is empty.
func (p *Provider) Dimension(_ context.Context) (int, error) {
	var dim int
	err := p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(p.bucket)
		if b == nil {
			return nil
		}
		key, v := b.Cursor().First()
		if key == nil {
			return nil
		}
		r, err := record(string(key), v)
		if err != nil {
			return err
		}
		dim = len(r.Vector)
		return nil
	})
	return dim, err
}

// Flush is a no-op; committed transactions are immediately visible.
func (*Provider) Flush(_ context.Context) error {
	return nil
}

// Close closes the underlying database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// record decodes v into a VectorRecord that does not alias transaction memory.
func record(id string, v []byte) (embedstore.VectorRecord, error) {
	vector, embedded, err := decodeEntry(v)
	if err != nil {
		return embedstore.VectorRecord{}, fmt.Errorf("entry %s: %w", id, err)
	}
	return embedstore.VectorRecord{ID: id, Vector: vector, Embedded: slices.Clone(embedded)}, nil
}

// Entry layout: uvarint vector byte length, packed vector, one flag byte
// (1 when a payload follows), payload.
func encodeEntry(vector []float32, embedded []byte) []byte {
	packed := shared.EncodeVector(vector)
	buf := make([]byte, 0, binary.MaxVarintLen64+len(packed)+1+len(embedded))
	buf = binary.AppendUvarint(buf, uint64(len(packed)))
	buf = append(buf, packed...)
	if embedded == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return append(buf, embedded...)
}

// decodeEntry returns the vector (copied) and the payload, which aliases v.
func decodeEntry(v []byte) ([]float32, []byte, error) {
	n, size := binary.Uvarint(v)
	// The flag byte follows the vector, so at most len(v)-size-1 bytes remain for it.
	if size <= 0 || len(v)-size < 1 || n > uint64(len(v)-size-1) {
		return nil, nil, errCorrupt
	}
	end := size + int(n)
	vector, err := shared.DecodeVector(v[size:end])
	if err != nil {
		return nil, nil, err
	}
	switch v[end] {
	case 0:
		return vector, nil, nil
	case 1:
		return vector, v[end+1:], nil
	default:
		return nil, nil, errCorrupt
	}
}

// Ensure Provider implements embedstore.Provider.
var _ embedstore.Provider = (*Provider)(nil)
