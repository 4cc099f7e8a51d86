// Package source reads raw order documents from a directory or an S3 bucket.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/compozy/orderetl/engine/order"
	"github.com/compozy/orderetl/pkg/config"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// ErrNoDocuments is returned when a source holds no document matching its pattern.
var ErrNoDocuments = errors.New("no order documents found")

const DefaultPattern = "*.json"

// Source lists and reads every document of a batch. Documents are returned
// ordered by name.
type Source interface {
	Extract(ctx context.Context) ([]order.Raw, error)
	Describe() string
}

// InvalidJSONError names a document whose bytes are not valid JSON.
type InvalidJSONError struct {
	Name string
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("invalid JSON in %s", e.Name)
}

// New builds the source selected by cfg. An explicit dir overrides cfg.Dir
// for the fs driver.
func New(ctx context.Context, cfg *config.SourceConfig, dir string) (Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source: configuration is required")
	}
	switch cfg.Driver {
	case "", "fs":
		if dir == "" {
			dir = cfg.Dir
		}
		return NewFS(afero.NewOsFs(), dir, cfg.Pattern), nil
	case "s3":
		client, err := NewS3Client(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.Pattern)
	default:
		return nil, fmt.Errorf("source: unsupported driver %q", cfg.Driver)
	}
}

func matchName(pattern, name string) (bool, error) {
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		return false, fmt.Errorf("bad source pattern %q: %w", pattern, err)
	}
	return ok, nil
}

func checkJSON(name string, data []byte) error {
	if !gjson.ValidBytes(data) {
		return &InvalidJSONError{Name: name}
	}
	return nil
}
