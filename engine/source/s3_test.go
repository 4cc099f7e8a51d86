package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/compozy/orderetl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves a fixed object set, two keys per listing page.
type fakeS3 struct {
	objects map[string]string
	listErr error
	getErr  error

	mu   sync.Mutex
	gets []string
}

func (f *fakeS3) ListObjectsV2(
	_ context.Context,
	in *s3.ListObjectsV2Input,
	_ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+2, len(keys))
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeS3) GetObject(
	_ context.Context,
	in *s3.GetObjectInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	key := aws.ToString(in.Key)
	f.mu.Lock()
	f.gets = append(f.gets, key)
	f.mu.Unlock()
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func TestS3_Extract(t *testing.T) {
	t.Run("Should page through the prefix and keep top-level matches", func(t *testing.T) {
		api := &fakeS3{objects: map[string]string{
			"incoming/order_c.json":     `{"order_id":"C"}`,
			"incoming/order_a.json":     `{"order_id":"A"}`,
			"incoming/order_b.json":     `{"order_id":"B"}`,
			"incoming/manifest.csv":     `a,b`,
			"incoming/archive/old.json": `{"order_id":"OLD"}`,
			"elsewhere/order_z.json":    `{"order_id":"Z"}`,
		}}
		src, err := NewS3(api, "orders-bucket", "incoming/", "")
		require.NoError(t, err)
		docs, err := src.Extract(context.Background())
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, []string{"order_a.json", "order_b.json", "order_c.json"},
			[]string{docs[0].Source, docs[1].Source, docs[2].Source})
		sort.Strings(api.gets)
		assert.Equal(t, []string{"incoming/order_a.json", "incoming/order_b.json", "incoming/order_c.json"}, api.gets)
	})

	t.Run("Should return ErrNoDocuments when nothing matches", func(t *testing.T) {
		api := &fakeS3{objects: map[string]string{"incoming/x.csv": "x"}}
		src, err := NewS3(api, "orders-bucket", "incoming/", "*.json")
		require.NoError(t, err)
		_, err = src.Extract(context.Background())
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("Should name the object holding invalid JSON", func(t *testing.T) {
		api := &fakeS3{objects: map[string]string{"broken.json": `[`}}
		src, err := NewS3(api, "orders-bucket", "", "*.json")
		require.NoError(t, err)
		_, err = src.Extract(context.Background())
		var jsonErr *InvalidJSONError
		require.ErrorAs(t, err, &jsonErr)
		assert.Equal(t, "broken.json", jsonErr.Name)
	})

	t.Run("Should wrap listing and download failures", func(t *testing.T) {
		src, err := NewS3(&fakeS3{listErr: errors.New("access denied")}, "orders-bucket", "", "")
		require.NoError(t, err)
		_, err = src.Extract(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list s3://orders-bucket/")

		api := &fakeS3{objects: map[string]string{"a.json": `{}`}, getErr: errors.New("timeout")}
		src, err = NewS3(api, "orders-bucket", "", "")
		require.NoError(t, err)
		_, err = src.Extract(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "get s3://orders-bucket/a.json")
	})
}

func TestNewS3(t *testing.T) {
	t.Run("Should require a client and a bucket", func(t *testing.T) {
		_, err := NewS3(nil, "b", "", "")
		assert.Error(t, err)
		_, err = NewS3(&fakeS3{}, "", "", "")
		assert.Error(t, err)
	})
}

func TestNewS3Client(t *testing.T) {
	t.Run("Should apply endpoint and path style", func(t *testing.T) {
		client, err := NewS3Client(context.Background(), &config.S3SourceConfig{
			Bucket:          "orders",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
			AccessKeyID:     "minio",
			SecretAccessKey: "minio-secret",
		})
		require.NoError(t, err)
		opts := client.Options()
		assert.True(t, opts.UsePathStyle)
		assert.Equal(t, "http://localhost:9000", aws.ToString(opts.BaseEndpoint))
		assert.Equal(t, defaultRegion, opts.Region)
	})
}
