package embedstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// Store provides type-safe embedding storage with an embedded payload of type T.
// Wraps a Provider, validating every input and handling serialization of T
// to and from bytes. A Store is safe for concurrent use.
type Store[T any] struct {
	provider  Provider
	codec     Codec
	newID     func() string
	caps      Capabilities
	dimension atomic.Int64

	// adopt serializes writes while the dimension is not fixed yet.
	adopt sync.Mutex
}

// New creates a Store for payload type T backed by the given provider.
// Uses JSONCodec and random UUID ids by default.
func New[T any](provider Provider, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		provider: provider,
		codec:    JSONCodec{},
		newID:    uuid.NewString,
		caps:     provider.Capabilities(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = JSONCodec{}
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Supports reports whether the provider implements every capability in c.
func (s *Store[T]) Supports(c Capability) bool {
	return s.caps.Supported.Has(c)
}

// OnMissingUpdate reports how the provider treats updates of absent ids.
func (s *Store[T]) OnMissingUpdate() MissingPolicy {
	return s.caps.OnMissingUpdate
}

// Dimension returns the embedding dimension the store accepts, or 0 if not yet fixed.
// A store over a provider that already holds entries fixes its dimension from
// them on the first write or search.
func (s *Store[T]) Dimension() int {
	return int(s.dimension.Load())
}

// Add stores an embedding under a generated id and returns the id.
func (s *Store[T]) Add(ctx context.Context, embedding Embedding) (string, error) {
	id := s.newID()
	done := track(ctx, addOp, FieldID.Field(id))
	err := s.put(ctx, []Embedding{embedding}, func() error {
		return backendError(s.provider.Upsert(ctx, []VectorRecord{{ID: id, Vector: embedding.Vector()}}))
	})
	if err != nil {
		return "", done(err)
	}
	return id, done(nil)
}

// AddWithID stores an embedding under id, replacing any existing entry.
func (s *Store[T]) AddWithID(ctx context.Context, id string, embedding Embedding) error {
	done := track(ctx, addOp, FieldID.Field(id))
	if err := s.require(CapabilityExplicitID); err != nil {
		return done(err)
	}
	if err := checkID(id); err != nil {
		return done(err)
	}
	return done(s.put(ctx, []Embedding{embedding}, func() error {
		return backendError(s.provider.Upsert(ctx, []VectorRecord{{ID: id, Vector: embedding.Vector()}}))
	}))
}

// AddEmbedded stores an embedding with its payload under a generated id and returns the id.
func (s *Store[T]) AddEmbedded(ctx context.Context, embedding Embedding, embedded T) (string, error) {
	id := s.newID()
	done := track(ctx, addOp, FieldID.Field(id))
	if err := s.require(CapabilityEmbedded); err != nil {
		return "", done(err)
	}
	if err := s.writeOne(ctx, id, embedding, &embedded, s.provider.Upsert); err != nil {
		return "", done(err)
	}
	return id, done(nil)
}

// AddEmbeddedWithID stores an embedding with its payload under id, replacing any existing entry.
func (s *Store[T]) AddEmbeddedWithID(ctx context.Context, id string, embedding Embedding, embedded T) error {
	done := track(ctx, addOp, FieldID.Field(id))
	if err := s.require(CapabilityExplicitID | CapabilityEmbedded); err != nil {
		return done(err)
	}
	if err := checkID(id); err != nil {
		return done(err)
	}
	return done(s.writeOne(ctx, id, embedding, &embedded, s.provider.Upsert))
}

// AddAll stores embeddings under generated ids.
// The returned ids are positionally aligned with embeddings.
func (s *Store[T]) AddAll(ctx context.Context, embeddings []Embedding) ([]string, error) {
	ids := s.generateIDs(len(embeddings))
	done := track(ctx, addOp, FieldCount.Field(len(embeddings)))
	if err := s.writeBatch(ctx, ids, embeddings, nil, s.provider.Upsert); err != nil {
		return nil, done(err)
	}
	return ids, done(nil)
}

// AddAllEmbedded stores embeddings with their payloads under generated ids.
// embeddings and embedded must have equal lengths.
// The returned ids are positionally aligned with embeddings.
func (s *Store[T]) AddAllEmbedded(ctx context.Context, embeddings []Embedding, embedded []T) ([]string, error) {
	done := track(ctx, addOp, FieldCount.Field(len(embeddings)))
	if err := s.require(CapabilityEmbedded); err != nil {
		return nil, done(err)
	}
	if len(embedded) != len(embeddings) {
		return nil, done(batchLengthError(len(embeddings), len(embedded)))
	}
	ids := s.generateIDs(len(embeddings))
	if err := s.writeBatch(ctx, ids, embeddings, embedded, s.provider.Upsert); err != nil {
		return nil, done(err)
	}
	return ids, done(nil)
}

// AddAllWithIDs stores embeddings with their payloads under the given ids,
// replacing existing entries. ids, embeddings and embedded must have equal
// lengths; embedded may be nil to store entries without payloads.
// Returns ids. When ids repeat, the last occurrence wins.
func (s *Store[T]) AddAllWithIDs(ctx context.Context, ids []string, embeddings []Embedding, embedded []T) ([]string, error) {
	done := track(ctx, addOp, FieldCount.Field(len(ids)))
	required := CapabilityExplicitID
	if embedded != nil {
		required |= CapabilityEmbedded
	}
	if err := s.require(required); err != nil {
		return nil, done(err)
	}
	if err := checkAligned(ids, embeddings, embedded); err != nil {
		return nil, done(err)
	}
	if err := s.writeBatch(ctx, ids, embeddings, embedded, s.provider.Upsert); err != nil {
		return nil, done(err)
	}
	return append([]string(nil), ids...), done(nil)
}

// Update replaces the embedding stored under id, keeping its payload.
// Absent ids are handled according to OnMissingUpdate.
func (s *Store[T]) Update(ctx context.Context, id string, embedding Embedding) error {
	done := track(ctx, updateOp, FieldID.Field(id))
	if err := s.require(CapabilityUpdateEmbedding); err != nil {
		return done(err)
	}
	if err := checkID(id); err != nil {
		return done(err)
	}
	return done(s.put(ctx, []Embedding{embedding}, func() error {
		return backendError(s.provider.UpdateVectors(ctx, []VectorRecord{{ID: id, Vector: embedding.Vector()}}))
	}))
}

// UpdateEmbedded replaces the embedding and payload stored under id.
// Absent ids are handled according to OnMissingUpdate.
func (s *Store[T]) UpdateEmbedded(ctx context.Context, id string, embedding Embedding, embedded T) error {
	done := track(ctx, updateOp, FieldID.Field(id))
	if err := s.require(CapabilityUpdate | CapabilityEmbedded); err != nil {
		return done(err)
	}
	if err := checkID(id); err != nil {
		return done(err)
	}
	return done(s.writeOne(ctx, id, embedding, &embedded, s.provider.Update))
}

// UpdateAll replaces embeddings and payloads of the entries under ids.
// ids, embeddings and embedded must have equal lengths; embedded may be nil
// to replace only the embeddings and keep the stored payloads.
func (s *Store[T]) UpdateAll(ctx context.Context, ids []string, embeddings []Embedding, embedded []T) error {
	done := track(ctx, updateOp, FieldCount.Field(len(ids)))
	required := CapabilityUpdateEmbedding
	write := s.provider.UpdateVectors
	if embedded != nil {
		required = CapabilityUpdate | CapabilityEmbedded
		write = s.provider.Update
	}
	if err := s.require(required); err != nil {
		return done(err)
	}
	if err := checkAligned(ids, embeddings, embedded); err != nil {
		return done(err)
	}
	return done(s.writeBatch(ctx, ids, embeddings, embedded, write))
}

// Delete removes the entry under id. Deleting an absent id is not an error.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	done := track(ctx, deleteOp, FieldID.Field(id))
	if err := s.require(CapabilityDelete); err != nil {
		return done(err)
	}
	if err := checkID(id); err != nil {
		return done(err)
	}
	if err := s.provider.Delete(ctx, []string{id}); err != nil {
		return done(backendError(err))
	}
	return done(nil)
}

// DeleteAll removes the entries under ids. Absent ids are ignored.
func (s *Store[T]) DeleteAll(ctx context.Context, ids []string) error {
	done := track(ctx, deleteOp, FieldCount.Field(len(ids)))
	if err := s.require(CapabilityDelete); err != nil {
		return done(err)
	}
	for _, id := range ids {
		if err := checkID(id); err != nil {
			return done(err)
		}
	}
	if len(ids) == 0 {
		return done(nil)
	}
	if err := s.provider.Delete(ctx, append([]string(nil), ids...)); err != nil {
		return done(backendError(err))
	}
	return done(nil)
}

// Get retrieves the entry under id.
// Returns ErrNotFound if the id does not exist.
func (s *Store[T]) Get(ctx context.Context, id string) (*Entry[T], error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	r, err := s.provider.Get(ctx, id)
	if err != nil {
		return nil, backendError(err)
	}
	embedded, err := s.decode(ctx, r.Embedded)
	if err != nil {
		return nil, err
	}
	return &Entry[T]{
		ID:        r.ID,
		Embedding: NewEmbedding(r.Vector...),
		Embedded:  embedded,
	}, nil
}

// FindRelevant returns up to maxResults entries most relevant to reference,
// highest score first. Equivalent to FindRelevantWithMinScore with a minimum of 0.
func (s *Store[T]) FindRelevant(ctx context.Context, reference Embedding, maxResults int) ([]Match[T], error) {
	return s.FindRelevantWithMinScore(ctx, reference, maxResults, 0)
}

// FindRelevantWithMinScore returns up to maxResults entries whose relevance
// to reference is at least minScore, highest score first.
// maxResults <= 0 yields no matches. minScore must lie in [0, 1].
func (s *Store[T]) FindRelevantWithMinScore(ctx context.Context, reference Embedding, maxResults int, minScore float64) ([]Match[T], error) {
	start := time.Now()
	capitan.Emit(ctx, FindStarted, FieldLimit.Field(maxResults), FieldMinScore.Field(minScore))

	matches, err := s.find(ctx, reference, maxResults, minScore)
	if err != nil {
		capitan.Emit(ctx, FindFailed,
			FieldLimit.Field(maxResults),
			FieldError.Field(err),
			FieldDuration.Field(time.Since(start)),
		)
		return nil, err
	}

	capitan.Emit(ctx, FindCompleted,
		FieldLimit.Field(maxResults),
		FieldResults.Field(len(matches)),
		FieldDuration.Field(time.Since(start)),
	)
	return matches, nil
}

// AwaitPersisted blocks until every write acknowledged so far is visible to
// FindRelevant. It is a no-op for providers with synchronous visibility.
func (s *Store[T]) AwaitPersisted(ctx context.Context) error {
	start := time.Now()
	if err := s.provider.Flush(ctx); err != nil {
		return backendError(err)
	}
	capitan.Emit(ctx, PersistCompleted, FieldDuration.Field(time.Since(start)))
	return nil
}

func (s *Store[T]) find(ctx context.Context, reference Embedding, maxResults int, minScore float64) ([]Match[T], error) {
	if math.IsNaN(minScore) || minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("%w: %v", ErrScoreRange, minScore)
	}
	if reference.Dimension() == 0 {
		return nil, ErrEmptyEmbedding
	}
	dim := s.Dimension()
	if dim == 0 && maxResults > 0 {
		var err error
		if dim, err = s.knownDimension(ctx); err != nil {
			return nil, err
		}
	}
	if dim != 0 && reference.Dimension() != dim {
		return nil, fmt.Errorf("%w: reference has %d dimensions, store has %d", ErrDimensionMismatch, reference.Dimension(), dim)
	}
	if maxResults <= 0 {
		return []Match[T]{}, nil
	}

	results, err := s.provider.Search(ctx, reference.Vector(), maxResults, minScore)
	if err != nil {
		return nil, backendError(err)
	}

	matches := make([]Match[T], 0, len(results))
	for _, r := range results {
		embedded, err := s.decode(ctx, r.Embedded)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match[T]{
			Score:     r.Score,
			ID:        r.ID,
			Embedding: NewEmbedding(r.Vector...),
			Embedded:  embedded,
		})
	}
	return matches, nil
}

// writeOne validates, encodes and writes a single entry carrying a payload.
func (s *Store[T]) writeOne(ctx context.Context, id string, embedding Embedding, embedded *T, write func(context.Context, []VectorRecord) error) error {
	err := s.put(ctx, []Embedding{embedding}, func() error {
		data, err := s.encode(ctx, embedded)
		if err != nil {
			return err
		}
		return backendError(write(ctx, []VectorRecord{{ID: id, Vector: embedding.Vector(), Embedded: data}}))
	})
	if err != nil {
		return err
	}
	return callAfterSave(ctx, embedded)
}

// writeBatch validates, encodes and writes aligned batches. embedded may be nil.
// Every input is checked before the provider is called.
func (s *Store[T]) writeBatch(ctx context.Context, ids []string, embeddings []Embedding, embedded []T, write func(context.Context, []VectorRecord) error) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.put(ctx, embeddings, func() error {
		records := make([]VectorRecord, len(ids))
		for i, id := range ids {
			records[i] = VectorRecord{ID: id, Vector: embeddings[i].Vector()}
			if embedded == nil {
				continue
			}
			data, err := s.encode(ctx, &embedded[i])
			if err != nil {
				return err
			}
			records[i].Embedded = data
		}
		return backendError(write(ctx, records))
	})
	if err != nil {
		return err
	}
	if embedded == nil {
		return nil
	}
	return callAfterSaveSlice(ctx, embedded)
}

// put checks embeddings against the store dimension and runs write. The
// dimension of the embeddings is fixed as the store dimension only once write
// succeeds; a rejected or failed write leaves it unchanged.
func (s *Store[T]) put(ctx context.Context, embeddings []Embedding, write func() error) error {
	if s.Dimension() == 0 {
		s.adopt.Lock()
		defer s.adopt.Unlock()
	}
	want, err := s.checkDimensions(ctx, embeddings...)
	if err != nil {
		return err
	}
	if err := write(); err != nil {
		return err
	}
	s.dimension.CompareAndSwap(0, int64(want))
	return nil
}

// knownDimension returns the store dimension, asking the provider for the
// dimension of its stored vectors while none is fixed.
func (s *Store[T]) knownDimension(ctx context.Context) (int, error) {
	if dim := s.Dimension(); dim != 0 {
		return dim, nil
	}
	dim, err := s.provider.Dimension(ctx)
	if err != nil {
		return 0, backendError(err)
	}
	if dim > 0 {
		s.dimension.CompareAndSwap(0, int64(dim))
	}
	return s.Dimension(), nil
}

// checkDimensions verifies that every embedding is non-empty and shares one
// dimension matching the store's, and returns that dimension.
func (s *Store[T]) checkDimensions(ctx context.Context, embeddings ...Embedding) (int, error) {
	if len(embeddings) == 0 {
		return 0, nil
	}
	for i, e := range embeddings {
		if e.Dimension() == 0 {
			return 0, fmt.Errorf("%w: position %d", ErrEmptyEmbedding, i)
		}
	}
	want, err := s.knownDimension(ctx)
	if err != nil {
		return 0, err
	}
	if want == 0 {
		want = embeddings[0].Dimension()
	}
	for i, e := range embeddings {
		if e.Dimension() != want {
			return 0, fmt.Errorf("%w: position %d has %d dimensions, want %d", ErrDimensionMismatch, i, e.Dimension(), want)
		}
	}
	return want, nil
}

func (s *Store[T]) encode(ctx context.Context, embedded *T) ([]byte, error) {
	if err := callBeforeSave(ctx, embedded); err != nil {
		return nil, err
	}
	data, err := s.codec.Encode(embedded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return data, nil
}

func (s *Store[T]) decode(ctx context.Context, data []byte) (*T, error) {
	if data == nil {
		return nil, nil
	}
	var value T
	if err := s.codec.Decode(data, &value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := callAfterLoad(ctx, &value); err != nil {
		return nil, err
	}
	return &value, nil
}

func (s *Store[T]) require(c Capability) error {
	if s.caps.Supported.Has(c) {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrUnsupported, c&^s.caps.Supported)
}

func (s *Store[T]) generateIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = s.newID()
	}
	return ids
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrBlankID
	}
	return nil
}

// checkAligned verifies ids are non-blank and the parallel inputs line up.
// embedded may be nil.
func checkAligned[T any](ids []string, embeddings []Embedding, embedded []T) error {
	if len(embeddings) != len(ids) {
		return batchLengthError(len(ids), len(embeddings))
	}
	if embedded != nil && len(embedded) != len(ids) {
		return batchLengthError(len(ids), len(embedded))
	}
	for i, id := range ids {
		if err := checkID(id); err != nil {
			return fmt.Errorf("%w: position %d", err, i)
		}
	}
	return nil
}

func batchLengthError(want, got int) error {
	return fmt.Errorf("%w: %d != %d", ErrBatchLength, want, got)
}

// backendError classifies a provider error. Errors already carrying a
// store error kind pass through; anything else is a backend failure.
func backendError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrNotFound, ErrUnsupported, ErrInvalidInput, ErrBackend} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}

type operation struct {
	started   capitan.Signal
	completed capitan.Signal
	failed    capitan.Signal
}

var (
	addOp    = operation{AddStarted, AddCompleted, AddFailed}
	updateOp = operation{UpdateStarted, UpdateCompleted, UpdateFailed}
	deleteOp = operation{DeleteStarted, DeleteCompleted, DeleteFailed}
)

// track emits op's started signal and returns a function that emits the
// completed or failed signal for err and returns err unchanged.
func track(ctx context.Context, op operation, fields ...capitan.Field) func(error) error {
	start := time.Now()
	capitan.Emit(ctx, op.started, fields...)
	return func(err error) error {
		fields := append(fields, FieldDuration.Field(time.Since(start)))
		if err != nil {
			capitan.Emit(ctx, op.failed, append(fields, FieldError.Field(err))...)
			return err
		}
		capitan.Emit(ctx, op.completed, fields...)
		return nil
	}
}
