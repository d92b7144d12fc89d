// Package qdrant provides an embedstore Provider for Qdrant.
//
// Points live in a cosine-distance collection that is created on the first
// write. Qdrant only accepts UUID or integer point ids, so other ids are
// mapped to name-based UUIDs; the original id, the unnormalized vector and
// the payload travel in the point payload. Scores are recomputed from the
// stored vector, so they match every other provider exactly.
//
// Updates of absent ids insert them (MissingUpsert). Replacing only the
// vector of a point is not supported.
package qdrant

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/internal/shared"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Payload keys.
const (
	keyID       = "id"
	keyVector   = "vector"
	keyEmbedded = "embedded"
)

// thresholdSlack widens the server-side score threshold so float32 rounding
// in Qdrant never drops a point that qualifies under the exact score.
const thresholdSlack = 1e-4

// idNamespace seeds the name-based UUIDs of non-UUID ids.
var idNamespace = uuid.MustParse("8f3a4c2e-5b1d-4e7f-9a6c-0d2e4f6a8b1c")

// barrierID is never written; deleting it with Wait set orders after every prior write.
var barrierID = uuid.Nil.String()

// Config holds configuration for the Qdrant provider.
type Config struct {
	// Collection is the name of the Qdrant collection.
	Collection string

	// Dimension is the vector size used when creating the collection.
	// Zero adopts the dimension of the first write.
	Dimension uint64

	// Async acknowledges writes before Qdrant has applied them.
	// Store.AwaitPersisted then blocks until they are visible.
	Async bool
}

// Provider implements embedstore.Provider for Qdrant.
type Provider struct {
	client *qdrant.Client
	config Config

	mu    sync.Mutex
	ready bool
}

// New creates a Qdrant provider with the given client and config.
func New(client *qdrant.Client, config Config) *Provider {
	return &Provider{
		client: client,
		config: config,
	}
}

// Capabilities reports support for everything except vector-only updates,
// with MissingUpsert updates.
func (*Provider) Capabilities() embedstore.Capabilities {
	return embedstore.Capabilities{
		Supported:       embedstore.CapabilityAll &^ embedstore.CapabilityUpdateEmbedding,
		OnMissingUpdate: embedstore.MissingUpsert,
	}
}

// Upsert stores the records, replacing points with the same ids.
func (p *Provider) Upsert(ctx context.Context, records []embedstore.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := p.ensureCollection(ctx, uint64(len(records[0].Vector))); err != nil {
		return err
	}
	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.config.Collection,
		Points:         toPoints(records),
		Wait:           qdrant.PtrOf(!p.config.Async),
	})
	return err
}

// Update replaces vector and payload of the points; absent ids are inserted.
func (p *Provider) Update(ctx context.Context, records []embedstore.VectorRecord) error {
	return p.Upsert(ctx, records)
}

// UpdateVectors is not supported.
func (*Provider) UpdateVectors(_ context.Context, _ []embedstore.VectorRecord) error {
	return fmt.Errorf("%w: qdrant cannot replace a vector without its payload", embedstore.ErrUnsupported)
}

// Delete removes points by id. Absent ids are ignored.
func (p *Provider) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(PointID(id))
	}
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: p.config.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
		Wait:           qdrant.PtrOf(!p.config.Async),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

// Get retrieves the point under id.
func (p *Provider) Get(ctx context.Context, id string) (*embedstore.VectorResult, error) {
	resp, err := p.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: p.config.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(PointID(id))},
		WithVectors:    qdrant.NewWithVectors(false),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if isNotFound(err) {
		return nil, embedstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, embedstore.ErrNotFound
	}
	r, err := fromPayload(resp[0].Payload)
	if err != nil {
		return nil, err
	}
	if r.ID != id {
		return nil, embedstore.ErrNotFound
	}
	result := r.Result()
	return &result, nil
}

// Search queries the collection and returns the k most relevant points.
func (p *Provider) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]embedstore.VectorResult, error) {
	threshold := shared.CosineFromRelevance(minScore) - thresholdSlack
	resp, err := p.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: p.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		ScoreThreshold: qdrant.PtrOf(float32(threshold)),
		WithVectors:    qdrant.NewWithVectors(false),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if isNotFound(err) {
		return []embedstore.VectorResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	candidates := make([]embedstore.VectorRecord, len(resp))
	for i, scored := range resp {
		candidates[i], err = fromPayload(scored.Payload)
		if err != nil {
			return nil, err
		}
	}
	return embedstore.Rank(vector, candidates, k, minScore)
}

// Dimension returns the vector size of the collection, or 0 when it has not
// been created yet.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	info, err := p.client.GetCollectionInfo(ctx, p.config.Collection)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()), nil
}

// Flush blocks until every write acknowledged so far has been applied.
// It is a no-op unless Config.Async is set.
func (p *Provider) Flush(ctx context.Context) error {
	if !p.config.Async {
		return nil
	}
	// Updates apply in order, so a waited no-op delete returns after all of them.
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: p.config.Collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(barrierID)),
		Wait:           qdrant.PtrOf(true),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

// ensureCollection creates the collection on first use.
func (p *Provider) ensureCollection(ctx context.Context, dimension uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}

	exists, err := p.client.CollectionExists(ctx, p.config.Collection)
	if err != nil {
		return err
	}
	if !exists {
		if p.config.Dimension != 0 {
			dimension = p.config.Dimension
		}
		err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: p.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return err
		}
	}
	p.ready = true
	return nil
}

// PointID returns the Qdrant point id used for id: id itself when it is a
// UUID in canonical lowercase form, otherwise a name-based UUID derived from
// it. Other spellings of a UUID (upper case, braces, urn prefix, no dashes)
// are distinct ids and are hashed like any other string.
func PointID(id string) string {
	if u, err := uuid.Parse(id); err == nil && u.String() == id {
		return id
	}
	return uuid.NewSHA1(idNamespace, []byte(id)).String()
}

// toPoints converts records to points. When an id repeats, the last record wins.
func toPoints(records []embedstore.VectorRecord) []*qdrant.PointStruct {
	index := make(map[string]int, len(records))
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		pid := PointID(r.ID)
		point := &qdrant.PointStruct{
			Id:      qdrant.NewID(pid),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: toPayload(r),
		}
		if i, ok := index[pid]; ok {
			points[i] = point
			continue
		}
		index[pid] = len(points)
		points = append(points, point)
	}
	return points
}

func toPayload(r embedstore.VectorRecord) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		keyID:     qdrant.NewValueString(r.ID),
		keyVector: qdrant.NewValueString(base64.StdEncoding.EncodeToString(shared.EncodeVector(r.Vector))),
	}
	if r.Embedded != nil {
		payload[keyEmbedded] = qdrant.NewValueString(base64.StdEncoding.EncodeToString(r.Embedded))
	}
	return payload
}

func fromPayload(payload map[string]*qdrant.Value) (embedstore.VectorRecord, error) {
	id := payload[keyID].GetStringValue()
	if id == "" {
		return embedstore.VectorRecord{}, fmt.Errorf("%w: point without id", embedstore.ErrDecode)
	}
	packed, err := base64.StdEncoding.DecodeString(payload[keyVector].GetStringValue())
	if err != nil {
		return embedstore.VectorRecord{}, fmt.Errorf("%w: entry %s: %w", embedstore.ErrDecode, id, err)
	}
	vector, err := shared.DecodeVector(packed)
	if err != nil {
		return embedstore.VectorRecord{}, fmt.Errorf("entry %s: %w", id, err)
	}
	r := embedstore.VectorRecord{ID: id, Vector: vector}
	if v, ok := payload[keyEmbedded]; ok {
		r.Embedded, err = base64.StdEncoding.DecodeString(v.GetStringValue())
		if err != nil {
			return embedstore.VectorRecord{}, fmt.Errorf("%w: entry %s: %w", embedstore.ErrDecode, id, err)
		}
	}
	return r, nil
}

// isNotFound reports whether err means the collection does not exist yet.
func isNotFound(err error) bool {
	return err != nil && status.Code(err) == codes.NotFound
}

// Ensure Provider implements embedstore.Provider.
var _ embedstore.Provider = (*Provider)(nil)
