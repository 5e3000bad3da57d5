package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// Fetcher downloads http(s) sources
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ObjectGetter reads s3 objects; *s3.Client satisfies it
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Sources opens ranking source files by location
type Sources struct {
	http Fetcher
	s3   ObjectGetter
}

// NewSources creates a source opener. Either backend may be nil, in which case
// locations needing it fail.
func NewSources(http Fetcher, s3 ObjectGetter) *Sources {
	return &Sources{http: http, s3: s3}
}

// NewS3Client builds an S3 client from the default AWS credential chain
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Open returns a reader for a local path, an http(s) URL or s3://bucket/key
func (s *Sources) Open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if s.http == nil {
			return nil, fmt.Errorf("http sources are not configured")
		}
		body, err := s.http.Fetch(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", source, err)
		}
		return io.NopCloser(bytes.NewReader(body)), nil

	case strings.HasPrefix(source, "s3://"):
		if s.s3 == nil {
			return nil, fmt.Errorf("s3 sources are not configured")
		}
		bucket, key, err := ParseS3URL(source)
		if err != nil {
			return nil, err
		}
		out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get s3 object %s: %w", source, err)
		}
		log.Debug().Str("bucket", bucket).Str("key", key).Msg("Opened s3 source")
		return out.Body, nil

	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open source file: %w", err)
		}
		return f, nil
	}
}

// ParseS3URL splits s3://bucket/key
func ParseS3URL(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 location %q: %w", source, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", source)
	}
	return bucket, key, nil
}
