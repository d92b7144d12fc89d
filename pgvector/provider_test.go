package pgvector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zoobzio/embedstore"
	embedtesting "github.com/zoobzio/embedstore/testing"
	"github.com/zoobzio/embedstore/testing/conformance"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	// pgvector/pgvector ships the extension pre-installed.
	container, err := embedtesting.StartContainer(func() (*postgres.PostgresContainer, error) {
		return postgres.Run(ctx,
			"pgvector/pgvector:pg16",
			postgres.WithDatabase("testdb"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres container unavailable: %v\n", err)
		os.Exit(m.Run())
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	testDB, err = sqlx.Connect(DriverName, connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to postgres: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = testDB.Close()
	_ = container.Terminate(ctx)

	os.Exit(code)
}

// newTestProvider returns a provider on a fresh table.
func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	if testDB == nil {
		t.Skip("postgres container unavailable")
	}
	table := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	p, err := New(context.Background(), testDB, Config{Table: table})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		_, _ = testDB.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table))
	})
	return p
}

func TestConformance(t *testing.T) {
	conformance.RunConformance(t, &conformance.TestContext{
		NewProvider: func(t *testing.T) embedstore.Provider {
			return newTestProvider(t)
		},
	})
}

func TestNew_InvalidTable(t *testing.T) {
	_, err := New(context.Background(), nil, Config{Table: `x"; DROP TABLE y; --`})
	if !errors.Is(err, embedstore.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	caps := (&Provider{}).Capabilities()
	if caps.Supported != embedstore.CapabilityAll {
		t.Errorf("expected all capabilities, got %s", caps.Supported)
	}
	if caps.OnMissingUpdate != embedstore.MissingFail {
		t.Errorf("expected MissingFail, got %v", caps.OnMissingUpdate)
	}
}

func TestVectorText(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
		want   string
	}{
		{"integers", []float32{1, 2, 3}, "[1,2,3]"},
		{"fractions", []float32{0.1, -2.5}, "[0.1,-2.5]"},
		{"single", []float32{0}, "[0]"},
		{"tiny", []float32{1e-30}, "[1e-30]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := vectorToString(tt.vector)
			if got != tt.want {
				t.Errorf("vectorToString(%v) = %q, want %q", tt.vector, got, tt.want)
			}
			back, err := parseVector(got)
			if err != nil {
				t.Fatalf("parseVector failed: %v", err)
			}
			if !reflect.DeepEqual(back, tt.vector) {
				t.Errorf("round trip: got %v, want %v", back, tt.vector)
			}
		})
	}
}

func TestVectorText_ExactFloat32(t *testing.T) {
	v := []float32{math.Float32frombits(0x3f8ccccd), math.SmallestNonzeroFloat32, math.MaxFloat32}
	back, err := parseVector(vectorToString(v))
	if err != nil {
		t.Fatalf("parseVector failed: %v", err)
	}
	for i := range v {
		if math.Float32bits(back[i]) != math.Float32bits(v[i]) {
			t.Errorf("component %d: got %v, want %v", i, back[i], v[i])
		}
	}
}

func TestParseVector_Invalid(t *testing.T) {
	if _, err := parseVector("[1,2"); err == nil {
		t.Error("expected an error for truncated text")
	}
	r := row{ID: "a", Embedding: "nope"}
	if _, err := r.record(); !errors.Is(err, embedstore.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestProvider_NullPayload(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if err := p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 2}}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, err := p.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Embedded != nil {
		t.Errorf("expected nil payload, got %q", got.Embedded)
	}
	if !reflect.DeepEqual(got.Vector, []float32{1, 2}) {
		t.Errorf("unexpected vector %v", got.Vector)
	}
}

func TestProvider_UpdateRollsBack(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 0}, Embedded: []byte(`"old"`)}})

	err := p.Update(ctx, []embedstore.VectorRecord{
		{ID: "a", Vector: []float32{0, 1}, Embedded: []byte(`"new"`)},
		{ID: "missing", Vector: []float32{0, 1}},
	})
	if !errors.Is(err, embedstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, _ := p.Get(ctx, "a")
	if string(got.Embedded) != `"old"` || got.Vector[0] != 1 {
		t.Errorf("expected transaction rolled back, got %+v", got)
	}
}

func TestProvider_OverwriteKeepsPosition(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{
		{ID: "first", Vector: []float32{1, 0}},
		{ID: "second", Vector: []float32{1, 0}},
	})
	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "first", Vector: []float32{1, 0}}})

	results, err := p.Search(ctx, []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != "first" || results[1].ID != "second" {
		t.Errorf("expected insertion order on ties, got %+v", results)
	}
}

func TestProvider_ZeroVector(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{
		{ID: "zero", Vector: []float32{0, 0}},
		{ID: "away", Vector: []float32{-1, 0}},
	})

	results, err := p.Search(ctx, []float32{1, 0}, 5, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != "zero" || results[0].Score != 0.5 {
		t.Errorf("expected the zero vector first with score 0.5, got %+v", results)
	}
}

func TestProvider_SearchKeepsTies(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	// Both score the same against [1, 1]; k=1 must return the earlier one.
	_ = p.Upsert(ctx, []embedstore.VectorRecord{
		{ID: "x", Vector: []float32{1, 0}},
		{ID: "y", Vector: []float32{0, 1}},
	})

	results, err := p.Search(ctx, []float32{1, 1}, 1, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "x" {
		t.Errorf("expected x, got %+v", results)
	}
}

func TestProvider_SharedTable(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 0}}})

	other, err := New(ctx, p.DB(), p.config)
	if err != nil {
		t.Fatalf("New on existing table failed: %v", err)
	}
	if _, err := other.Get(ctx, "a"); err != nil {
		t.Errorf("expected entry visible through second provider, got %v", err)
	}
}
