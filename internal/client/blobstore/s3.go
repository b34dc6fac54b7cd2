package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/dmitrijs2005/cryptchat/internal/logging"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// PresignExpiry is the lifetime of URLs returned by PresignedURL.
const PresignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}

	now = time.Now
)

// S3Config describes an S3-compatible endpoint (AWS or MinIO).
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

type S3Store struct {
	cfg     S3Config
	http    *HTTPFetcher
	logger  logging.Logger
	backoff func() retry.Backoff

	mu      sync.Mutex
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Store returns a store for cfg.Bucket. fetcher, if non-nil, serves
// http(s) references in Fetch.
func NewS3Store(cfg S3Config, fetcher *HTTPFetcher, logger logging.Logger) *S3Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &S3Store{cfg: cfg, http: fetcher, logger: logger, backoff: defaultBackoff}
}

// StorageKey returns a fresh object key under images/YYYY/MM/DD/.
func StorageKey(t time.Time) string {
	return fmt.Sprintf("images/%04d/%02d/%02d/%s", t.Year(), t.Month(), t.Day(), uuid.New())
}

// ParseRef splits an "s3://bucket/key" reference.
func ParseRef(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 reference: %q", ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 reference: %q", ref)
	}
	return bucket, key, nil
}

func (s *S3Store) clients(ctx context.Context) (*s3.Client, *s3.PresignClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, s.presign, nil
	}

	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKey,
			s.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}

	s.client = newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	s.presign = newS3PresignClient(s.client)
	return s.client, s.presign, nil
}

// Put uploads data and returns its s3:// reference.
func (s *S3Store) Put(ctx context.Context, data []byte) (string, error) {
	client, _, err := s.clients(ctx)
	if err != nil {
		return "", err
	}
	bucket := s.cfg.Bucket
	key := StorageKey(now())

	err = retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		_, err := putObject(client, ctx, &s3.PutObjectInput{
			Bucket:        &bucket,
			Key:           &key,
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String("application/octet-stream"),
		})
		if err != nil && ctx.Err() == nil {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	s.logger.Debug(ctx, "blob uploaded", "bucket", bucket, "key", key, "size", len(data))
	return "s3://" + bucket + "/" + key, nil
}

// Fetch reads an s3:// reference from the bucket or an http(s) reference
// through the HTTP fetcher.
func (s *S3Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		return s.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if s.http == nil {
			return nil, fmt.Errorf("http references not enabled: %q", ref)
		}
		return s.http.Fetch(ctx, ref)
	default:
		return nil, fmt.Errorf("unsupported reference %q", ref)
	}
}

func (s *S3Store) fetchS3(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	client, _, err := s.clients(ctx)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		out, err := getObject(client, ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				return fmt.Errorf("%s: %w", ref, common.ErrNotFound)
			}
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		defer out.Body.Close()
		b, err := readLimited(out.Body)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// PresignedURL returns a GET URL for ref valid for PresignExpiry.
func (s *S3Store) PresignedURL(ctx context.Context, ref string) (string, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	_, presign, err := s.clients(ctx)
	if err != nil {
		return "", err
	}
	req, err := presignGetObject(presign, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
