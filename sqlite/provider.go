// Package sqlite provides an embedstore Provider backed by a SQLite table.
//
// Entries live in one table keyed by id; vectors are stored as packed
// float32 blobs and searched by an exact scan. Every batch runs in a single
// transaction, so a failed batch leaves the table unchanged. Updates of
// absent ids fail with ErrNotFound (MissingFail). Ties in score are broken
// by first insertion order.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/internal/shared"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DriverName is the database/sql driver name registered by modernc.org/sqlite.
const DriverName = "sqlite"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds configuration for the SQLite provider.
type Config struct {
	// Table is the name of the table storing entries (default: "embeddings").
	Table string
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = "embeddings"
	}
	return c
}

// Provider implements embedstore.Provider for SQLite.
type Provider struct {
	db     *sqlx.DB
	config Config
}

type row struct {
	ID       string `db:"id"`
	Vector   []byte `db:"vector"`
	Embedded []byte `db:"embedded"`
}

// New creates a SQLite provider on db, creating the table if needed.
func New(ctx context.Context, db *sqlx.DB, config Config) (*Provider, error) {
	config = config.withDefaults()
	if !identifier.MatchString(config.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", embedstore.ErrInvalidInput, config.Table)
	}

	p := &Provider{db: db, config: config}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id       TEXT PRIMARY KEY,
		seq      INTEGER NOT NULL,
		vector   BLOB NOT NULL,
		embedded BLOB
	)`, config.Table)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return p, nil
}

// Open connects to the SQLite database at dsn and creates a provider on it.
// The connection pool is limited to one connection; SQLite serializes writers anyway.
func Open(ctx context.Context, dsn string, config Config) (*Provider, error) {
	db, err := sqlx.ConnectContext(ctx, DriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
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
// An overwritten entry keeps its original insertion position.
func (p *Provider) Upsert(ctx context.Context, records []embedstore.VectorRecord) error {
	query := fmt.Sprintf(
		`INSERT INTO %[1]q (id, seq, vector, embedded)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM %[1]q), ?, ?)
		 ON CONFLICT (id) DO UPDATE SET vector = excluded.vector, embedded = excluded.embedded`,
		p.config.Table,
	)
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			if _, err := tx.ExecContext(ctx, query, r.ID, shared.EncodeVector(r.Vector), nullable(r.Embedded)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update replaces vector and payload of existing entries.
// Fails with ErrNotFound, writing nothing, if any id is absent.
func (p *Provider) Update(ctx context.Context, records []embedstore.VectorRecord) error {
	query := fmt.Sprintf(`UPDATE %q SET vector = ?, embedded = ? WHERE id = ?`, p.config.Table)
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			res, err := tx.ExecContext(ctx, query, shared.EncodeVector(r.Vector), nullable(r.Embedded), r.ID)
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
	query := fmt.Sprintf(`UPDATE %q SET vector = ? WHERE id = ?`, p.config.Table)
	return p.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			res, err := tx.ExecContext(ctx, query, shared.EncodeVector(r.Vector), r.ID)
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
	query, args, err := sqlx.In(fmt.Sprintf(`DELETE FROM %q WHERE id IN (?)`, p.config.Table), ids)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, p.db.Rebind(query), args...)
	return err
}

// Get retrieves the entry under id.
func (p *Provider) Get(ctx context.Context, id string) (*embedstore.VectorResult, error) {
	var r row
	query := fmt.Sprintf(`SELECT id, vector, embedded FROM %q WHERE id = ?`, p.config.Table)
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

// Search scans the table in insertion order and returns the k most relevant entries.
func (p *Provider) Search(ctx context.Context, vector []float32, k int, minScore float64) ([]embedstore.VectorResult, error) {
	query := fmt.Sprintf(`SELECT id, vector, embedded FROM %q ORDER BY seq`, p.config.Table)
	rows, err := p.db.QueryxContext(ctx, query)
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

// Dimension returns the length of the stored vectors, or 0 when the table is empty.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	var size int
	query := fmt.Sprintf(`SELECT length(vector) FROM %q ORDER BY seq LIMIT 1`, p.config.Table)
	err := p.db.GetContext(ctx, &size, query)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return size / shared.VectorElementSize, nil
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
	vector, err := shared.DecodeVector(r.Vector)
	if err != nil {
		return embedstore.VectorRecord{}, fmt.Errorf("entry %s: %w", r.ID, err)
	}
	record := embedstore.VectorRecord{ID: r.ID, Vector: vector}
	if len(r.Embedded) > 0 {
		record.Embedded = r.Embedded
	}
	return record, nil
}

// nullable stores a missing payload as NULL rather than an empty blob.
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
