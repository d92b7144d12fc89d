package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/zoobzio/embedstore"
	embedtesting "github.com/zoobzio/embedstore/testing"
	"github.com/zoobzio/embedstore/testing/conformance"
)

var testClient *redis.Client

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := embedtesting.StartContainer(func() (*tcredis.RedisContainer, error) {
		return tcredis.Run(ctx, "redis:7-alpine")
	})
	if err != nil {
		// Without a container runtime only the offline tests run.
		fmt.Fprintf(os.Stderr, "redis container unavailable: %v\n", err)
		os.Exit(m.Run())
	}

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	opts, err := redis.ParseURL(endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testClient = redis.NewClient(opts)

	code := m.Run()

	_ = testClient.Close()
	_ = container.Terminate(ctx)

	os.Exit(code)
}

// newTestProvider returns a provider on a fresh key prefix.
func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	if testClient == nil {
		t.Skip("redis container unavailable")
	}
	p := New(testClient, Config{Prefix: "test-" + uuid.NewString()})
	t.Cleanup(func() { _ = p.Clear(context.Background()) })
	return p
}

func TestConformance(t *testing.T) {
	conformance.RunConformance(t, &conformance.TestContext{
		NewProvider: func(t *testing.T) embedstore.Provider {
			return newTestProvider(t)
		},
	})
}

func TestNew(t *testing.T) {
	p := New(nil, Config{})
	if p.config.Prefix != "embedstore" {
		t.Errorf("expected default prefix, got %q", p.config.Prefix)
	}
	if got := p.entryKey("a"); got != "{embedstore}:entry:a" {
		t.Errorf("unexpected entry key %q", got)
	}
	if got := p.orderKey(); got != "{embedstore}:order" {
		t.Errorf("unexpected order key %q", got)
	}
}

func TestRecord(t *testing.T) {
	if _, ok, err := record("a", map[string]string{}); ok || err != nil {
		t.Errorf("expected missing entry, got ok=%v err=%v", ok, err)
	}
	if _, _, err := record("a", map[string]string{fieldVector: "abc"}); !errors.Is(err, embedstore.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}

	packed := string([]byte{0, 0, 128, 63}) // 1.0
	r, ok, err := record("a", map[string]string{fieldVector: packed, fieldEmbedded: `"x"`})
	if err != nil || !ok {
		t.Fatalf("unexpected result ok=%v err=%v", ok, err)
	}
	if len(r.Vector) != 1 || r.Vector[0] != 1 || string(r.Embedded) != `"x"` {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestProvider_UpdateIgnoresMissing(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1, 0}, Embedded: []byte(`"old"`)}})

	err := p.Update(ctx, []embedstore.VectorRecord{
		{ID: "a", Vector: []float32{0, 1}, Embedded: []byte(`"new"`)},
		{ID: "ghost", Vector: []float32{0, 1}},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	a, _ := p.Get(ctx, "a")
	if string(a.Embedded) != `"new"` {
		t.Errorf("expected existing entry updated, got %q", a.Embedded)
	}
	if _, err := p.Get(ctx, "ghost"); !errors.Is(err, embedstore.ErrNotFound) {
		t.Errorf("expected ghost skipped, got %v", err)
	}
}

func TestProvider_OverwriteKeepsOrder(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	for _, id := range []string{"z", "a", "m"} {
		_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: id, Vector: []float32{1, 1}}})
	}
	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "z", Vector: []float32{3, 3}, Embedded: []byte(`1`)}})

	results, err := p.Search(ctx, []float32{1, 1}, 3, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i, want := range []string{"z", "a", "m"} {
		if results[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, results[i].ID)
		}
	}
}

func TestProvider_UpsertDropsStalePayload(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1}, Embedded: []byte(`"x"`)}})
	_ = p.Upsert(ctx, []embedstore.VectorRecord{{ID: "a", Vector: []float32{1}}})

	a, err := p.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a.Embedded != nil {
		t.Errorf("expected payload removed, got %q", a.Embedded)
	}
}
