// Package pgvector provides an embedstore Provider backed by PostgreSQL with
// the pgvector extension.
//
// Vectors live in a vector column and are ordered server-side by cosine
// distance; the returned candidates are re-scored exactly before they are
// handed back. Batches run in one transaction. Updates of absent ids fail
// with ErrNotFound (MissingFail). Ties in score are broken by first
// insertion order.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/internal/shared"
)

// DriverName is the database/sql driver name registered by lib/pq.
const DriverName = "postgres"

// distanceSlack widens the server-side cut so float32 rounding in the
// database never drops a candidate the exact score would keep.
const distanceSlack = 1e-4

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds configuration for the pgvector provider.
type Config struct {
	// Table is the name of the table storing entries (default: "embeddings").
	Table string
	// SkipExtension leaves CREATE EXTENSION to the operator, for roles
	// without the privilege.
	SkipExtension bool
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = "embeddings"
	}
	return c
}

// Provider implements embedstore.Provider for PostgreSQL with pgvector.
type Provider struct {
	db     *sqlx.DB
	config Config
}

type row struct {
	ID        string `db:"id"`
	Embedding string `db:"embedding"`
	Embedded  []byte `db:"embedded"`
}

// New creates a pgvector provider on db, creating the extension and table if needed.
func New(ctx context.Context, db *sqlx.DB, config Config) (*Provider, error) {
	config = config.withDefaults()
	if !identifier.MatchString(config.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", embedstore.ErrInvalidInput, config.Table)
	}

	if !config.SkipExtension {
		if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return nil, fmt.Errorf("create extension: %w", err)
		}
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id        TEXT PRIMARY KEY,
		seq       BIGSERIAL,
		embedding vector NOT NULL,
		embedded  BYTEA
	)`, config.Table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &Provider{db: db, config: config}, nil
}

// Open connects to the database at dsn and creates a provider on it.
func Open(ctx context.Context, dsn string, config Config) (*Provider, error) {
	db, err := sqlx.ConnectContext(ctx, DriverName, dsn)
	if err != nil {
		return nil, err
	}
	p, err := New(ctx, db, config)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// DB returns the underlying database handle.
func (p *Provider) DB() *sqlx.DB {
	return p.db
}

// Capabilities reports full support with MissingFail updates.
func (*Provider) Capabilities() embedstore.Capabilities {
	return embedstore.Capabilities{
		Supported:       embedstore.CapabilityAll,
		OnMissingUpdate: embedstore.MissingFail,
	}
}

// Upsert stores the records, replacing entries with the same ids.
// An overwritten entry keeps its sequence number.
func (p *Provider) Upsert(ctx context.Context, records []embedstore.VectorRecord) error {
	query := fmt.Sprintf(
		`INSERT INTO %q (id, embedding, embedded) VALUES ($1, $2::vector, $3)
		 ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, embedded = EXCLUDED.embedded`,
		p.config.Table,
	)
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			if _, err := tx.ExecContext(ctx, query, r.ID, vectorToString(r.Vector), nullable(r.Embedded)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update replaces vector and payload of existing entries.
// Fails with ErrNotFound, writing nothing, if any id is absent.
func (p *Provider) Update(ctx context.Context, records []embedstore.VectorRecord) error {
	query := fmt.Sprintf(`UPDATE %q SET embedding = $1::vector, embedded = $2 WHERE id = $3`, p.config.Table)
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			res, err := tx.ExecContext(ctx, query, vectorToString(r.Vector), nullable(r.Embedded), r.ID)
			if err := requireRow(res, err, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateVectors replaces the vectors of existing entries, keeping payloads.
// Fails with ErrNotFound, writing nothing, if any id is absent.
func (p *Provider) UpdateVectors(ctx context.Context, records []embedstore.VectorRecord) error {
	query := fmt.Sprintf(`UPDATE %q SET embedding = $1::vector WHERE id = $2`, p.config.Table)
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			res, err := tx.ExecContext(ctx, query, vectorToString(r.Vector), r.ID)
			if err := requireRow(res, err, r.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes entries by id. Absent ids are ignored.
func (p *Provider) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE id = ANY($1)`, p.config.Table)
	_, err := p.db.ExecContext(ctx, query, pq.Array(ids))
	return err
}

// Get retrieves the entry under id.
func (p *Provider) Get(ctx context.Context, id string) (*embedstore.VectorResult, error) {
	var r row
	query := fmt.Sprintf(`SELECT id, embedding::text AS embedding, embedded FROM %q WHERE id = $1`, p.config.Table)
	err := p.db.GetContext(ctx, &r, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, embedstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record, err := r.record()
	if err != nil {
		return nil, err
	}
	result := record.Result()
	return &result, nil
}

// Search returns the k most relevant entries with score >= minScore.
//
// The database orders by cosine distance and keeps every row within
// distanceSlack of the k-th nearest, so candidates that tie under exact
// scoring all reach the final ranking. A zero-norm vector has distance 1.
func (p *Provider) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]embedstore.VectorResult, error) {
	if k <= 0 {
		return []embedstore.VectorResult{}, nil
	}
	query := fmt.Sprintf(`
		WITH scored AS (
			SELECT id, seq, embedding, embedded,
			       COALESCE(NULLIF(embedding <=> $1::vector, 'NaN'), 1) AS distance
			FROM %q
		), kept AS (
			SELECT * FROM scored WHERE 1 - distance >= $2
		)
		SELECT id, embedding::text AS embedding, embedded FROM kept
		WHERE distance <= COALESCE(
			(SELECT distance FROM kept ORDER BY distance, seq OFFSET $3 - 1 LIMIT 1), 2
		) + $4
		ORDER BY distance, seq`,
		p.config.Table,
	)
	threshold := shared.CosineFromRelevance(minScore) - distanceSlack
	rows, err := p.db.QueryxContext(ctx, query, vectorToString(vector), threshold, k, distanceSlack)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []embedstore.VectorRecord
	for rows.Next() {
		var r row
		if err := rows.StructScan(&r); err != nil {
			return nil, err
		}
		record, err := r.record()
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return embedstore.Rank(vector, candidates, k, minScore)
}

// Dimension returns the dimension of the stored vectors, or 0 when the table is empty.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	var dim int
	query := fmt.Sprintf(`SELECT vector_dims(embedding) FROM %q ORDER BY seq LIMIT 1`, p.config.Table)
	err := p.db.GetContext(ctx, &dim, query)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return dim, nil
}

// Flush is a no-op; committed transactions are immediately visible.
func (*Provider) Flush(_ context.Context) error {
	return nil
}

// Close closes the underlying database.
func (p *Provider) Close() error {
	return p.db.Close()
}

func (p *Provider) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r row) record() (embedstore.VectorRecord, error) {
	vector, err := parseVector(r.Embedding)
	if err != nil {
		return embedstore.VectorRecord{}, fmt.Errorf("%w: entry %s: %w", embedstore.ErrDecode, r.ID, err)
	}
	record := embedstore.VectorRecord{ID: r.ID, Vector: vector}
	if len(r.Embedded) > 0 {
		record.Embedded = r.Embedded
	}
	return record, nil
}

// vectorToString renders v in pgvector text format. Each component uses the
// shortest form that parses back to the same float32.
func vectorToString(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses pgvector text format: [1,2.5,3].
func parseVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func nullable(data []byte) any {
	if data == nil {
		return nil
	}
	return data
}

func requireRow(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", embedstore.ErrNotFound, id)
	}
	return nil
}

// Ensure Provider implements embedstore.Provider.
var _ embedstore.Provider = (*Provider)(nil)
