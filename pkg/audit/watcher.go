package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// PatternFile is the YAML layout of a sensitive pattern file:
//
//	patterns:
//	  - password
//	  - iban
type PatternFile struct {
	Patterns []string `yaml:"patterns"`
}

// LoadPatternFile reads the pattern list from path
func LoadPatternFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}
	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file: %w", err)
	}
	// an empty file is usually a save in progress
	if len(file.Patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s lists no patterns", path)
	}
	return file.Patterns, nil
}

// PatternWatcher keeps a Redactor in sync with a pattern file
type PatternWatcher struct {
	path     string
	redactor *Redactor
	logger   *observability.Logger
	watcher  *fsnotify.Watcher
	reloaded chan struct{}
}

// NewPatternWatcher loads path into redactor and prepares to watch it
func NewPatternWatcher(path string, redactor *Redactor, logger *observability.Logger) (*PatternWatcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &PatternWatcher{
		path:     path,
		redactor: redactor,
		logger:   observability.OrNop(logger).WithField("pattern_file", path),
		reloaded: make(chan struct{}, 1),
	}
	if err := w.Reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// editors replace files on save, so the directory is watched
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch pattern file: %w", err)
	}
	w.watcher = watcher
	return w, nil
}

// Reload reads the file and swaps the redactor's patterns
func (w *PatternWatcher) Reload() error {
	patterns, err := LoadPatternFile(w.path)
	if err != nil {
		return err
	}
	w.redactor.SetPatterns(patterns)
	w.logger.WithField("patterns", len(patterns)).Info("sensitive patterns loaded")
	return nil
}

// Reloaded is signalled after every successful reload triggered by a file change
func (w *PatternWatcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Run processes file events until ctx is done. A broken file keeps the
// previous patterns.
func (w *PatternWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.WithError(err).Warn("keeping previous sensitive patterns")
				continue
			}
			select {
			case w.reloaded <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("pattern watcher error")
		}
	}
}
