// Package redis provides an embedstore Provider for Redis.
//
// Each entry is a hash holding the packed vector and, when present, the
// payload. Entries are written by Lua scripts, so a reader never sees a
// vector without its payload, and a batch is sent as one MULTI/EXEC
// transaction. A sorted set records first insertion order, which breaks ties
// in score. Search is an exact scan. Updates of absent ids are skipped
// without error (MissingIgnore).
//
// All keys share the hash tag "{prefix}" so a store lives in one cluster slot.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/internal/shared"
)

const (
	fieldVector   = "v"
	fieldEmbedded = "e"

	// scanBatch bounds the number of HGETALL commands per search round trip.
	scanBatch = 256
)

// KEYS: entry, order, seq. ARGV: id, vector, has payload, payload.
var upsertScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
if ARGV[3] == '1' then
	redis.call('HSET', KEYS[1], 'v', ARGV[2], 'e', ARGV[4])
else
	redis.call('HSET', KEYS[1], 'v', ARGV[2])
end
if not redis.call('ZSCORE', KEYS[2], ARGV[1]) then
	redis.call('ZADD', KEYS[2], redis.call('INCR', KEYS[3]), ARGV[1])
end
return 1
`)

// KEYS: entry. ARGV: vector, has payload, payload.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('DEL', KEYS[1])
if ARGV[2] == '1' then
	redis.call('HSET', KEYS[1], 'v', ARGV[1], 'e', ARGV[3])
else
	redis.call('HSET', KEYS[1], 'v', ARGV[1])
end
return 1
`)

// KEYS: entry. ARGV: vector.
var updateVectorScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1])
return 1
`)

// Config holds configuration for the Redis provider.
type Config struct {
	// Prefix namespaces every key of the store (default: "embedstore").
	Prefix string
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "embedstore"
	}
	return c
}

// Provider implements embedstore.Provider for Redis.
type Provider struct {
	client *redis.Client
	config Config
}

// New creates a Redis provider with the given client.
func New(client *redis.Client, config Config) *Provider {
	return &Provider{client: client, config: config.withDefaults()}
}

// Capabilities reports full support with MissingIgnore updates.
func (*Provider) Capabilities() embedstore.Capabilities {
	return embedstore.Capabilities{
		Supported:       embedstore.CapabilityAll,
		OnMissingUpdate: embedstore.MissingIgnore,
	}
}

// Upsert stores the records, replacing entries with the same ids.
func (p *Provider) Upsert(ctx context.Context, records []embedstore.VectorRecord) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range records {
			hasPayload, payload := payloadArgs(r.Embedded)
			upsertScript.Eval(ctx, pipe,
				[]string{p.entryKey(r.ID), p.orderKey(), p.seqKey()},
				r.ID, shared.EncodeVector(r.Vector), hasPayload, payload,
			)
		}
		return nil
	})
	return err
}

// Update replaces vector and payload of existing entries. Absent ids are skipped.
func (p *Provider) Update(ctx context.Context, records []embedstore.VectorRecord) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range records {
			hasPayload, payload := payloadArgs(r.Embedded)
			updateScript.Eval(ctx, pipe,
				[]string{p.entryKey(r.ID)},
				shared.EncodeVector(r.Vector), hasPayload, payload,
			)
		}
		return nil
	})
	return err
}

// UpdateVectors replaces the vectors of existing entries, keeping payloads.
// Absent ids are skipped.
func (p *Provider) UpdateVectors(ctx context.Context, records []embedstore.VectorRecord) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range records {
			updateVectorScript.Eval(ctx, pipe, []string{p.entryKey(r.ID)}, shared.EncodeVector(r.Vector))
		}
		return nil
	})
	return err
}

// Delete removes entries by id. Absent ids are ignored.
func (p *Provider) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = p.entryKey(id)
		members[i] = id
	}
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, p.orderKey(), members...)
		return nil
	})
	return err
}

// Get retrieves the entry under id.
func (p *Provider) Get(ctx context.Context, id string) (*embedstore.VectorResult, error) {
	fields, err := p.client.HGetAll(ctx, p.entryKey(id)).Result()
	if err != nil {
		return nil, err
	}
	r, ok, err := record(id, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, embedstore.ErrNotFound
	}
	result := r.Result()
	return &result, nil
}

// Search reads every entry in insertion order and returns the k most relevant.
func (p *Provider) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]embedstore.VectorResult, error) {
	ids, err := p.client.ZRange(ctx, p.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	candidates := make([]embedstore.VectorRecord, 0, len(ids))
	for start := 0; start < len(ids); start += scanBatch {
		batch := ids[start:min(start+scanBatch, len(ids))]
		cmds := make([]*redis.MapStringStringCmd, len(batch))
		_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, id := range batch {
				cmds[i] = pipe.HGetAll(ctx, p.entryKey(id))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for i, cmd := range cmds {
			r, ok, err := record(batch[i], cmd.Val())
			if err != nil {
				return nil, err
			}
			// Deleted between ZRANGE and HGETALL.
			if !ok {
				continue
			}
			candidates = append(candidates, r)
		}
	}
	return embedstore.Rank(vector, candidates, k, minScore)
}

// Dimension returns the dimension of the oldest entry, or 0 when the store is empty.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	ids, err := p.client.ZRange(ctx, p.orderKey(), 0, 0).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	size, err := p.client.HStrLen(ctx, p.entryKey(ids[0]), fieldVector).Result()
	if err != nil {
		return 0, err
	}
	return int(size) / shared.VectorElementSize, nil
}

// Flush is a no-op; acknowledged commands are immediately visible.
func (*Provider) Flush(_ context.Context) error {
	return nil
}

// Clear removes every key of the store.
func (p *Provider) Clear(ctx context.Context) error {
	ids, err := p.client.ZRange(ctx, p.orderKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	keys := []string{p.orderKey(), p.seqKey()}
	for _, id := range ids {
		keys = append(keys, p.entryKey(id))
	}
	return p.client.Del(ctx, keys...).Err()
}

func (p *Provider) entryKey(id string) string {
	return fmt.Sprintf("{%s}:entry:%s", p.config.Prefix, id)
}

func (p *Provider) orderKey() string {
	return fmt.Sprintf("{%s}:order", p.config.Prefix)
}

func (p *Provider) seqKey() string {
	return fmt.Sprintf("{%s}:seq", p.config.Prefix)
}

func payloadArgs(embedded []byte) (string, []byte) {
	if embedded == nil {
		return "0", []byte{}
	}
	return "1", embedded
}

// record converts an HGETALL reply. ok is false when the entry does not exist.
func record(id string, fields map[string]string) (embedstore.VectorRecord, bool, error) {
	packed, ok := fields[fieldVector]
	if !ok {
		return embedstore.VectorRecord{}, false, nil
	}
	vector, err := shared.DecodeVector([]byte(packed))
	if err != nil {
		return embedstore.VectorRecord{}, false, fmt.Errorf("entry %s: %w", id, err)
	}
	r := embedstore.VectorRecord{ID: id, Vector: vector}
	if payload, ok := fields[fieldEmbedded]; ok {
		r.Embedded = []byte(payload)
	}
	return r, true, nil
}

// Ensure Provider implements embedstore.Provider.
var _ embedstore.Provider = (*Provider)(nil)
