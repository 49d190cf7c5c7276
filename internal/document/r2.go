package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2Scheme prefixes CV sources stored in the configured bucket.
const R2Scheme = "r2://"

type R2Config struct {
	AccountID string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Enabled reports whether enough is configured to reach the bucket.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// ObjectGetter is the part of the s3 client the loader uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader resolves CV sources: local paths, or r2://key when a bucket is
// configured.
type Loader struct {
	bucket   string
	client   ObjectGetter
	attempts int
	backoff  time.Duration
}

// NewLoader returns a Loader for local files only.
func NewLoader() *Loader {
	return &Loader{attempts: 3, backoff: 500 * time.Millisecond}
}

// NewR2Loader returns a Loader that can also fetch from Cloudflare R2.
func NewR2Loader(ctx context.Context, cfg R2Config) (*Loader, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating aws config: %w", err)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	l := NewLoader()
	l.bucket, l.client = cfg.Bucket, client
	return l, nil
}

// WithObjectGetter swaps the storage client.
func (l *Loader) WithObjectGetter(bucket string, client ObjectGetter) *Loader {
	l.bucket, l.client = bucket, client
	return l
}

// Load returns the text of source.
func (l *Loader) Load(ctx context.Context, source string) (string, error) {
	key, remote := strings.CutPrefix(source, R2Scheme)
	if !remote {
		return LoadFile(source)
	}
	if l.client == nil {
		return "", fmt.Errorf("%s requires R2 storage to be configured", source)
	}
	mime, err := MimeFromName(key)
	if err != nil {
		return "", err
	}

	// network failures are transient
	data, err := retry(ctx, l.attempts, l.backoff, func() ([]byte, error) {
		return Download(ctx, l.client, l.bucket, key)
	})
	if err != nil {
		return "", err
	}
	return ExtractText(mime, data)
}

// Download reads a whole object into memory.
func Download(ctx context.Context, client ObjectGetter, bucket, key string) ([]byte, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	_, err = io.Copy(buf, out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return buf.Bytes(), nil
}

// retry calls fn up to attempts times with linear backoff.
func retry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i < attempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		slog.Warn("attempt failed", "attempt", i+1, "error", err)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(i+1) * backoff):
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
