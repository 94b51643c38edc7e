package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "reports/j1/checklist.html", "text/html", strings.NewReader("<ul></ul>"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "reports/j1/checklist.html"), uri)

	content, err := os.ReadFile(filepath.Join(dir, "reports/j1/checklist.html"))
	require.NoError(t, err)
	require.Equal(t, "<ul></ul>", string(content))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.html", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}

func TestGetObjectRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "reports/j2/debug.json", "application/json", strings.NewReader(`{"ok":true}`))
	require.NoError(t, err)

	content, ok := store.GetObject("reports/j2/debug.json")
	require.True(t, ok)
	require.Equal(t, `{"ok":true}`, string(content))

	_, ok = store.GetObject("reports/j2/missing.json")
	require.False(t, ok)
}

func TestGetObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("no"), 0o600))

	_, ok := store.GetObject("../secret.txt")
	require.False(t, ok)
}

func TestNewCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	_, err := New(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	require.Error(t, err)
}
