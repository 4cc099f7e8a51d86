package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/compozy/orderetl/engine/order"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/spf13/afero"
)

// FS reads documents from the top level of one directory.
type FS struct {
	fs      afero.Fs
	dir     string
	pattern string
}

func NewFS(fsys afero.Fs, dir, pattern string) *FS {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &FS{fs: fsys, dir: dir, pattern: pattern}
}

func (s *FS) Describe() string {
	return fmt.Sprintf("dir %s (%s)", s.dir, s.pattern)
}

// Extract fails when the directory is missing, is not a directory, holds no
// matching file, or any matching file is not valid JSON.
func (s *FS) Extract(ctx context.Context) ([]order.Raw, error) {
	log := logger.FromContext(ctx)
	info, err := s.fs.Stat(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("source directory does not exist: %s", s.dir)
		}
		return nil, fmt.Errorf("stat source directory %s: %w", s.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", s.dir)
	}
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("read source directory %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := matchName(s.pattern, e.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s matching %s", ErrNoDocuments, s.dir, s.pattern)
	}
	sort.Strings(names)
	docs := make([]order.Raw, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := checkJSON(name, data); err != nil {
			return nil, err
		}
		docs = append(docs, order.Raw{Source: name, Data: data})
	}
	log.Info("Extracted order documents", "count", len(docs), "dir", s.dir)
	return docs, nil
}
