package spill

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/kaidoh/fluentforward/log"
)

// S3Config configures S3Store.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses the default chain if
	// empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool

	Logger *log.Logger
}

func (c *S3Config) validate() error {
	if c.Bucket == "" {
		return errors.New("spill: S3 store requires a bucket")
	}
	return nil
}

// S3Store persists spilled chunks as objects in an S3 bucket under keys of
// the form "<prefix>/<tag>#<chunk-id-b64>#<created-at-millis>.msgpack", so
// parseSpillKey recovers an entry's metadata from the key string alone.
// The key shape and its parser are separate from FileStore's filenames.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *log.Logger
}

// NewS3 builds an S3Store using the AWS SDK's default credential chain
// (env vars, shared config, IAM role), optionally overridden by cfg.Region,
// cfg.Endpoint and cfg.UsePathStyle.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("spill: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: cfg.Logger,
	}, nil
}

func (s *S3Store) key(tag string, id uuid.UUID, createdAt time.Time) string {
	idB64 := base64.RawURLEncoding.EncodeToString(id[:])
	safeTag := strings.ReplaceAll(tag, "/", "_")
	name := fmt.Sprintf("%s#%s#%d.msgpack", safeTag, idB64, createdAt.UnixMilli())
	if s.prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + name
}

// Put uploads data as an object keyed by tag/id/createdAt.
func (s *S3Store) Put(ctx context.Context, tag string, id uuid.UUID, createdAt time.Time, data []byte) error {
	key := s.key(tag, id, createdAt)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("spill: put object %q: %w", key, err)
	}
	if s.logger != nil {
		s.logger.Info("spilled chunk to S3", map[string]any{"tag": tag, "key": key, "bytes": len(data)})
	}
	return nil
}

// List enumerates every object under Prefix and parses its key back into
// an Entry, downloading the object body.
func (s *S3Store) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	var continuationToken *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            prefixPtr(s.prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("spill: list objects: %w", err)
		}

		for _, obj := range out.Contents {
			e, err := s.getEntry(ctx, *obj.Key)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("skipping unparsable spill object", map[string]any{"key": *obj.Key, "error": err.Error()})
				}
				continue
			}
			entries = append(entries, e)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return entries, nil
}

func prefixPtr(prefix string) *string {
	if prefix == "" {
		return nil
	}
	return &prefix
}

func (s *S3Store) getEntry(ctx context.Context, key string) (Entry, error) {
	tag, id, createdAt, err := parseSpillKey(key)
	if err != nil {
		return Entry{}, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Entry{}, fmt.Errorf("get object %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("read object %q: %w", key, err)
	}

	return Entry{Tag: tag, ID: id, CreatedAt: createdAt, Data: data}, nil
}

func parseSpillKey(key string) (tag string, id uuid.UUID, createdAt time.Time, err error) {
	base := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		base = key[idx+1:]
	}
	base = strings.TrimSuffix(base, ".msgpack")
	parts := strings.Split(base, "#")
	if len(parts) != 3 {
		return "", uuid.UUID{}, time.Time{}, fmt.Errorf("unexpected key shape %q", base)
	}

	idBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(idBytes) != 16 {
		return "", uuid.UUID{}, time.Time{}, fmt.Errorf("invalid chunk id segment %q", parts[1])
	}
	id, err = uuid.FromBytes(idBytes)
	if err != nil {
		return "", uuid.UUID{}, time.Time{}, fmt.Errorf("invalid chunk id bytes: %w", err)
	}

	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", uuid.UUID{}, time.Time{}, fmt.Errorf("invalid timestamp segment %q", parts[2])
	}

	return parts[0], id, time.UnixMilli(millis), nil
}

// Delete removes the object backing e.
func (s *S3Store) Delete(ctx context.Context, e Entry) error {
	key := s.key(e.Tag, e.ID, e.CreatedAt)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("spill: delete object %q: %w", key, err)
	}
	return nil
}

// Clear removes every object under Prefix.
func (s *S3Store) Clear(ctx context.Context) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}

	objects := make([]s3types.ObjectIdentifier, 0, len(entries))
	for _, e := range entries {
		key := s.key(e.Tag, e.ID, e.CreatedAt)
		objects = append(objects, s3types.ObjectIdentifier{Key: &key})
	}
	if len(objects) == 0 {
		return nil
	}

	_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: &s.bucket,
		Delete: &s3types.Delete{Objects: objects},
	})
	if err != nil {
		return fmt.Errorf("spill: batch delete objects: %w", err)
	}
	return nil
}

var _ Store = (*S3Store)(nil)
