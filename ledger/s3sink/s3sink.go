// Package s3sink drains execution records evicted from the in-memory
// ledger (ledger.Ledger.OnEvict) to an S3-compatible bucket, so audit
// history outlives the process's bounded per-policy ring.
//
// Grounded on the teacher's lode/client_s3.go config shape (bucket,
// prefix, region, custom endpoint, path-style addressing for
// S3-compatible providers like R2/MinIO) and lode/sink.go's
// Sink/Client split with a StubClient for testing. Unlike the teacher,
// this sink talks to the AWS SDK's S3 client directly rather than
// through lode's Dataset/Store abstraction, since there is no Hive
// partition layout or parquet codec to reuse here — batches are
// msgpack-encoded per spec.md's C7 audit scope.
package s3sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haltline/haltd/types"
)

// Config configures the S3 durable export backend.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not
	// subdomain). Required by most S3-compatible providers.
	UsePathStyle bool
	// BatchSize is the number of evicted records buffered before an
	// automatic flush (default 50).
	BatchSize int
}

// Validate checks that required S3 configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3sink: bucket is required")
	}
	return nil
}

// Client abstracts the S3 object-put call the sink depends on, so tests
// can substitute a StubClient instead of talking to AWS.
type Client interface {
	PutObject(ctx context.Context, key string, body []byte) error
}

// Sink buffers evicted execution records and uploads them to S3 as
// msgpack-encoded batches, one object per flush.
type Sink struct {
	config Config
	client Client

	mu      sync.Mutex
	pending []types.ExecutionRecord
}

// New constructs a Sink from the given config using the AWS SDK's
// default credential chain (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3sink: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return newSink(cfg, &awsClient{bucket: cfg.Bucket, client: s3.NewFromConfig(awsConfig, s3Opts...)}), nil
}

func newSink(cfg Config, client Client) *Sink {
	return &Sink{config: cfg, client: client}
}

// Append buffers rec for export, flushing automatically once the batch
// reaches cfg.BatchSize. Intended as the callback passed to
// ledger.Ledger.OnEvict.
func (s *Sink) Append(rec types.ExecutionRecord) {
	s.mu.Lock()
	s.pending = append(s.pending, rec)
	shouldFlush := len(s.pending) >= s.config.BatchSize
	s.mu.Unlock()

	if shouldFlush {
		// Best-effort: the error of this automatic flush is discarded and
		// the batch is not retried (cmd/orchestratord logs only the final
		// Flush at shutdown) — retrying here would block the ledger's
		// eviction path.
		_ = s.Flush(context.Background())
	}
}

// Flush uploads any buffered records as a single msgpack-encoded object
// and clears the buffer. A no-op when nothing is pending.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	body, err := msgpack.Marshal(batch)
	if err != nil {
		return fmt.Errorf("s3sink: marshal batch: %w", err)
	}

	key := s.objectKey(batch[0])
	if err := s.client.PutObject(ctx, key, body); err != nil {
		return fmt.Errorf("s3sink: put object: %w", err)
	}
	return nil
}

// objectKey partitions exports by policy ID and UTC day, mirroring the
// teacher's Hive-style layout without the parquet/codec machinery this
// sink doesn't need.
func (s *Sink) objectKey(first types.ExecutionRecord) string {
	day := first.Ts.UTC().Format("2006-01-02")
	prefix := s.config.Prefix
	if prefix != "" {
		prefix = prefix + "/"
	}
	return fmt.Sprintf("%spolicy=%s/day=%s/%s.msgpack", prefix, first.PolicyID, day, uuid.New().String())
}

type awsClient struct {
	bucket string
	client *s3.Client
}

func (c *awsClient) PutObject(ctx context.Context, key string, body []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return err
}
