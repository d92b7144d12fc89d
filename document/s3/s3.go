// Package s3 provides a document.Source for AWS S3 and compatible stores.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/zoobzio/embedstore/document"
)

// Client is the subset of *s3.Client the source uses.
type Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Source loads documents from an S3 bucket. Locations are object keys.
type Source struct {
	client Client
	bucket string
}

// New creates an S3 source with the given client and bucket name.
func New(client Client, bucket string) *Source {
	return &Source{
		client: client,
		bucket: bucket,
	}
}

// Load reads the object stored under location.
func (s *Source) Load(ctx context.Context, location string) ([]byte, error) {
	if err := document.CheckLocation(location); err != nil {
		return nil, err
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nsb *types.NoSuchBucket
		if errors.As(err, &nsk) || errors.As(err, &nsb) {
			return nil, fmt.Errorf("%w: s3://%s/%s", document.ErrNotFound, s.bucket, location)
		}
		return nil, err
	}
	defer func() { _ = output.Body.Close() }()

	return io.ReadAll(output.Body)
}

// List returns the keys under prefix, skipping directory placeholders.
func (s *Source) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

var (
	_ Client          = (*s3.Client)(nil)
	_ document.Source = (*Source)(nil)
	_ document.Lister = (*Source)(nil)
)
