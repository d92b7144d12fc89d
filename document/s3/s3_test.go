package s3

import (
	"context"
	"errors"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/zoobzio/embedstore/document"
)

// mockClient serves objects from memory, pageSize keys per listing page.
type mockClient struct {
	mu       sync.Mutex
	objects  map[string]string
	pageSize int
	getErr   error
	gets     int
	lists    int
}

func (m *mockClient) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	content, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(content))}, nil
}

func (m *mockClient) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	start := 0
	if in.ContinuationToken != nil {
		start, _ = strconv.Atoi(*in.ContinuationToken)
	}
	end := min(start+m.pageSize, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func newMock() *mockClient {
	return &mockClient{
		pageSize: 2,
		objects: map[string]string{
			"kb/a.txt":     "alpha",
			"kb/b.md":      "# beta",
			"kb/c.txt":     "gamma",
			"kb/sub/":      "",
			"kb/sub/d.txt": "delta",
			"other/e.txt":  "epsilon",
		},
	}
}

func TestNew(t *testing.T) {
	s := New(newMock(), "bucket")
	if s.bucket != "bucket" {
		t.Errorf("expected bucket 'bucket', got %q", s.bucket)
	}
}

func TestSource_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("existing key", func(t *testing.T) {
		data, err := New(newMock(), "bucket").Load(ctx, "kb/a.txt")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(data) != "alpha" {
			t.Errorf("unexpected content %q", data)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := New(newMock(), "bucket").Load(ctx, "kb/missing.txt"); !errors.Is(err, document.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("missing bucket", func(t *testing.T) {
		m := newMock()
		m.getErr = &types.NoSuchBucket{}
		if _, err := New(m, "bucket").Load(ctx, "kb/a.txt"); !errors.Is(err, document.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		m := newMock()
		m.getErr = errors.New("throttled")
		_, err := New(m, "bucket").Load(ctx, "kb/a.txt")
		if err == nil || errors.Is(err, document.ErrNotFound) {
			t.Errorf("expected the client error, got %v", err)
		}
	})

	t.Run("invalid location skips the client", func(t *testing.T) {
		m := newMock()
		for _, location := range []string{"", "kb/"} {
			if _, err := New(m, "bucket").Load(ctx, location); !errors.Is(err, document.ErrInvalidLocation) {
				t.Errorf("Load(%q): expected ErrInvalidLocation, got %v", location, err)
			}
		}
		if m.gets != 0 {
			t.Errorf("expected no client calls, got %d", m.gets)
		}
	})
}

func TestSource_List(t *testing.T) {
	m := newMock()
	keys, err := New(m, "bucket").List(context.Background(), "kb/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"kb/a.txt", "kb/b.md", "kb/c.txt", "kb/sub/d.txt"}
	if !slices.Equal(keys, want) {
		t.Errorf("expected %v, got %v", want, keys)
	}
	if m.lists != 3 {
		t.Errorf("expected 3 pages, got %d", m.lists)
	}
}

func TestSource_WithLoader(t *testing.T) {
	docs, err := document.NewLoader(New(newMock(), "bucket")).LoadPrefix(context.Background(), "kb/")
	if err != nil {
		t.Fatalf("LoadPrefix failed: %v", err)
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	// kb/b.md has no parser registered and is skipped.
	if want := []string{"alpha", "gamma", "delta"}; !slices.Equal(texts, want) {
		t.Errorf("expected %v, got %v", want, texts)
	}
}
