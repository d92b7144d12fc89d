// Package gcs provides a document.Source for Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/zoobzio/embedstore/document"
	"google.golang.org/api/iterator"
)

// Source loads documents from a GCS bucket. Locations are object names.
type Source struct {
	client *storage.Client
	bucket string
}

// New creates a GCS source with the given client and bucket name.
func New(client *storage.Client, bucket string) *Source {
	return &Source{
		client: client,
		bucket: bucket,
	}
}

// Load reads the object named location.
func (s *Source) Load(ctx context.Context, location string) ([]byte, error) {
	if err := document.CheckLocation(location); err != nil {
		return nil, err
	}

	reader, err := s.client.Bucket(s.bucket).Object(location).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", document.ErrNotFound, s.bucket, location)
		}
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

// List returns the names of the objects under prefix, skipping directory placeholders.
func (s *Source) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

var (
	_ document.Source = (*Source)(nil)
	_ document.Lister = (*Source)(nil)
)
