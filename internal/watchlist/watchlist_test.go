package watchlist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeList(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciks.txt")
	writeList(t, path, "1067983\n\n# comment\n0000102909\n  1364742  \n")

	l, err := Load(path)
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, 3, snap.Len())
	assert.True(t, snap.Contains("0001067983"))
	assert.True(t, snap.Contains("1067983"))
	assert.True(t, snap.Contains("102909"))
	assert.False(t, snap.Contains("0000000001"))
	assert.Equal(t, []string{"0000102909", "0001067983", "0001364742"}, snap.CIKs())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLoad_InvalidLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciks.txt")
	writeList(t, path, "1067983\nBERKSHIRE\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRefresh_ContentHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciks.txt")
	writeList(t, path, "1067983\n")
	l, err := Load(path)
	require.NoError(t, err)
	first := l.Snapshot()

	// Same bytes, new mtime: no reload.
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	changed, err := l.Refresh()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, first, l.Snapshot())

	writeList(t, path, "1067983\n102909\n")
	changed, err = l.Refresh()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, l.Snapshot().Contains("102909"))
	assert.NotEqual(t, first.Hash(), l.Snapshot().Hash())

	// The old snapshot is untouched by the swap.
	assert.False(t, first.Contains("102909"))
}

func TestRefresh_KeepsSnapshotOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciks.txt")
	writeList(t, path, "1067983\n")
	l, err := Load(path)
	require.NoError(t, err)

	writeList(t, path, "not-a-cik\n")
	_, err = l.Refresh()
	assert.Error(t, err)
	assert.True(t, l.Snapshot().Contains("1067983"))

	require.NoError(t, os.Remove(path))
	_, err = l.Refresh()
	assert.Error(t, err)
	assert.True(t, l.Snapshot().Contains("1067983"))
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ciks.txt")
	writeList(t, path, "1067983\n")
	l, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()

	// Keep writing until the watcher is registered and sees a change.
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("1067983\n1364742\n"), 0o644)
		return l.Snapshot().Contains("1364742")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNilSnapshot(t *testing.T) {
	var s *Snapshot
	assert.False(t, s.Contains("1"))
	assert.Zero(t, s.Len())
	assert.Empty(t, s.CIKs())
}
