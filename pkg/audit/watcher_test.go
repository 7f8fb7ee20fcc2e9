package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePatternFile replaces path atomically, the way editors save
func writePatternFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestLoadPatternFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	writePatternFile(t, path, "patterns:\n  - password\n  - ssn\n")

	patterns, err := LoadPatternFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"password", "ssn"}, patterns)

	_, err = LoadPatternFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	writePatternFile(t, path, "patterns: [unterminated\n")
	_, err = LoadPatternFile(path)
	assert.Error(t, err)

	writePatternFile(t, path, "")
	_, err = LoadPatternFile(path)
	assert.Error(t, err)
}

func TestPatternWatcher_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	writePatternFile(t, path, "patterns:\n  - password\n")

	redactor := NewRedactor()
	watcher, err := NewPatternWatcher(path, redactor, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"password"}, redactor.Patterns())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	writePatternFile(t, path, "patterns:\n  - password\n  - iban\n")
	waitReload(t, watcher)
	assert.Equal(t, []string{"password", "iban"}, redactor.Patterns())

	filtered := redactor.Filter(map[string]any{"iban": "DE00", "name": "x"})
	assert.Equal(t, FilteredValue, filtered["iban"])
	assert.Equal(t, "x", filtered["name"])

	// a broken file leaves the last good patterns in place
	writePatternFile(t, path, "patterns: [unterminated\n")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{"password", "iban"}, redactor.Patterns())
}

func TestNewPatternWatcher_MissingFile(t *testing.T) {
	_, err := NewPatternWatcher(filepath.Join(t.TempDir(), "missing.yaml"), NewRedactor(), nil)
	assert.Error(t, err)
}

func waitReload(t *testing.T, w *PatternWatcher) {
	t.Helper()
	select {
	case <-w.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("pattern file change was not picked up")
	}
}
