package config

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	goredis "github.com/redis/go-redis/v9"
	"github.com/zoobzio/embedstore"
	"github.com/zoobzio/embedstore/bolt"
	"github.com/zoobzio/embedstore/document"
	"github.com/zoobzio/embedstore/document/gcs"
	"github.com/zoobzio/embedstore/document/markdown"
	"github.com/zoobzio/embedstore/document/s3"
	"github.com/zoobzio/embedstore/memory"
	"github.com/zoobzio/embedstore/pgvector"
	"github.com/zoobzio/embedstore/qdrant"
	"github.com/zoobzio/embedstore/redis"
	"github.com/zoobzio/embedstore/sqlite"
	"google.golang.org/api/option"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// Open builds the configured provider. The returned Closer releases the
// connections the provider owns.
func (c StoreConfig) Open(ctx context.Context) (embedstore.Provider, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	switch c.Provider {
	case ProviderSQLite:
		p, err := sqlite.Open(ctx, c.SQLite.DSN, sqlite.Config{Table: c.SQLite.Table})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return p, p, nil

	case ProviderBolt:
		p, err := bolt.Open(c.Bolt.Path, c.Bolt.Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt: %w", err)
		}
		return p, p, nil

	case ProviderRedis:
		opts, err := goredis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		return redis.New(client, redis.Config{Prefix: c.Redis.Prefix}), client, nil

	case ProviderQdrant:
		client, err := qdrantclient.NewClient(&qdrantclient.Config{
			Host:   c.Qdrant.Host,
			Port:   c.Qdrant.Port,
			APIKey: c.Qdrant.APIKey,
			UseTLS: c.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect qdrant: %w", err)
		}
		p := qdrant.New(client, qdrant.Config{
			Collection: c.Qdrant.Collection,
			Dimension:  uint64(c.Dimension), //nolint:gosec // validated non-negative
			Async:      c.Qdrant.Async,
		})
		return p, client, nil

	case ProviderPgvector:
		p, err := pgvector.Open(ctx, c.Pgvector.DSN, pgvector.Config{
			Table:         c.Pgvector.Table,
			SkipExtension: c.Pgvector.SkipExtension,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open pgvector: %w", err)
		}
		return p, p, nil

	default:
		return memory.New(), nopCloser, nil
	}
}

// OpenStore builds the configured provider and wraps it in a Store fixed to
// the configured dimension.
func OpenStore[T any](ctx context.Context, c StoreConfig, opts ...embedstore.Option[T]) (*embedstore.Store[T], io.Closer, error) {
	p, closer, err := c.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	if c.Dimension > 0 {
		opts = append([]embedstore.Option[T]{embedstore.WithDimension[T](c.Dimension)}, opts...)
	}
	return embedstore.New[T](p, opts...), closer, nil
}

// Open builds a document loader over the configured source. Markdown
// documents are rendered to plain text.
func (c DocumentConfig) Open(ctx context.Context) (*document.Loader, io.Closer, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		source document.Source
		closer io.Closer = nopCloser
	)
	switch c.Source {
	case SourceGCS:
		var opts []option.ClientOption
		if c.GCS.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(c.GCS.Endpoint))
		}
		if c.GCS.Anonymous {
			opts = append(opts, option.WithoutAuthentication())
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		source, closer = gcs.New(client, c.GCS.Bucket), client

	case SourceS3:
		client, err := c.S3.client(ctx)
		if err != nil {
			return nil, nil, err
		}
		source = s3.New(client, c.S3.Bucket)

	default:
		return nil, nil, fmt.Errorf("%w: document source", ErrNotConfigured)
	}

	loader := document.NewLoader(source,
		document.WithParser(document.TypeMarkdown, markdown.New()),
		document.WithConcurrency(c.Concurrency),
	)
	return loader, closer, nil
}

func (c S3Config) client(ctx context.Context) (*awss3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.PathStyle
	}), nil
}
