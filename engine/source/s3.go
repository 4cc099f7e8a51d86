package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/compozy/orderetl/engine/order"
	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRegion        = "us-east-1"
	maxParallelDownloads = 8
)

// S3API is the subset of the S3 client used by the bucket source.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds an S3 client. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies. A custom
// endpoint (MinIO, localstack) may be combined with path-style addressing.
func NewS3Client(ctx context.Context, cfg *config.S3SourceConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey.Value() != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey.Value(), ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// S3 reads documents stored directly under a key prefix of one bucket.
type S3 struct {
	client  S3API
	bucket  string
	prefix  string
	pattern string
}

func NewS3(client S3API, bucket, prefix, pattern string) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("source: s3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("source: s3 bucket is required")
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, pattern: pattern}, nil
}

func (s *S3) Describe() string {
	return fmt.Sprintf("s3://%s/%s (%s)", s.bucket, s.prefix, s.pattern)
}

// Extract lists the prefix, keeps keys whose base name matches the pattern
// and downloads them concurrently. Documents keep key order. Keys in nested
// "directories" are skipped.
func (s *S3) Extract(ctx context.Context) ([]order.Raw, error) {
	log := logger.FromContext(ctx)
	keys, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDocuments, s.Describe())
	}
	docs := make([]order.Raw, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)
	for i, key := range keys {
		g.Go(func() error {
			data, err := s.get(gctx, key)
			if err != nil {
				return err
			}
			name := path.Base(key)
			if err := checkJSON(name, data); err != nil {
				return err
			}
			docs[i] = order.Raw{Source: name, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info("Extracted order documents", "count", len(docs), "bucket", s.bucket, "prefix", s.prefix)
	return docs, nil
}

func (s *S3) list(ctx context.Context) ([]string, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		in.Prefix = aws.String(s.prefix)
	}
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
			if rel == "" || strings.Contains(rel, "/") {
				continue
			}
			ok, err := matchName(s.pattern, rel)
			if err != nil {
				return nil, err
			}
			if ok {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}
