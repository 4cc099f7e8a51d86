package source

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("data", 0o755))
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(body), 0o644))
	}
	return fsys
}

func TestFS_Extract(t *testing.T) {
	t.Run("Should read matching files sorted by name", func(t *testing.T) {
		fsys := memFS(t, map[string]string{
			"data/order_b.json":  `{"order_id":"B"}`,
			"data/order_a.json":  `{"order_id":"A"}`,
			"data/readme.txt":    `not json`,
			"data/nested/c.json": `{"order_id":"C"}`,
		})
		docs, err := NewFS(fsys, "data", "").Extract(context.Background())
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "order_a.json", docs[0].Source)
		assert.Equal(t, "order_b.json", docs[1].Source)
		assert.JSONEq(t, `{"order_id":"A"}`, string(docs[0].Data))
	})

	t.Run("Should fail when the directory is missing", func(t *testing.T) {
		_, err := NewFS(afero.NewMemMapFs(), "missing", "*.json").Extract(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist: missing")
	})

	t.Run("Should fail when the path is a file", func(t *testing.T) {
		fsys := memFS(t, map[string]string{"data/one.json": `{}`})
		_, err := NewFS(fsys, "data/one.json", "*.json").Extract(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("Should return ErrNoDocuments for an empty directory", func(t *testing.T) {
		fsys := memFS(t, map[string]string{"data/notes.txt": "x"})
		_, err := NewFS(fsys, "data", "*.json").Extract(context.Background())
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("Should name the file holding invalid JSON", func(t *testing.T) {
		fsys := memFS(t, map[string]string{
			"data/a.json": `{"order_id":"A"}`,
			"data/b.json": `{"order_id":`,
		})
		_, err := NewFS(fsys, "data", "*.json").Extract(context.Background())
		var jsonErr *InvalidJSONError
		require.ErrorAs(t, err, &jsonErr)
		assert.Equal(t, "b.json", jsonErr.Name)
	})

	t.Run("Should reject a malformed pattern", func(t *testing.T) {
		fsys := memFS(t, map[string]string{"data/a.json": `{}`})
		_, err := NewFS(fsys, "data", "[").Extract(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad source pattern")
	})

	t.Run("Should stop on a canceled context", func(t *testing.T) {
		fsys := memFS(t, map[string]string{"data/a.json": `{}`})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewFS(fsys, "data", "*.json").Extract(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
