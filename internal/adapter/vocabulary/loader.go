package vocabulary

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/V4T54L/alert-feed/internal/domain"
)

// Loader reads the generator vocabulary from a YAML file and watches it for changes.
type Loader struct {
	path     string
	logger   *slog.Logger
	mu       sync.RWMutex
	current  domain.Vocabulary
	onChange []func(domain.Vocabulary)
}

// NewLoader creates a Loader and performs the initial load. An invalid file
// at startup is an error.
func NewLoader(path string, logger *slog.Logger) (*Loader, error) {
	l := &Loader{path: path, logger: logger.With("component", "vocabulary_loader")}
	vocab, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = vocab
	return l, nil
}

// Vocabulary returns the vocabulary currently in effect.
func (l *Loader) Vocabulary() domain.Vocabulary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload.
func (l *Loader) OnChange(fn func(domain.Vocabulary)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch hot-reloads the vocabulary on file changes until stop is called.
// The parent directory is watched so editors that replace the file are seen.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("vocabulary watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("vocabulary watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warn("Vocabulary reload failed, keeping previous vocabulary", "path", l.path, "error", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("Vocabulary watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the vocabulary file.
func (l *Loader) Reload() (domain.Vocabulary, error) {
	vocab, err := l.load()
	if err != nil {
		return domain.Vocabulary{}, err
	}
	l.mu.Lock()
	l.current = vocab
	callbacks := make([]func(domain.Vocabulary), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	l.logger.Info("Vocabulary reloaded",
		"types", len(vocab.Types),
		"actions", len(vocab.Actions),
		"severities", len(vocab.Severities),
	)
	for _, fn := range callbacks {
		fn(vocab)
	}
	return vocab, nil
}

func (l *Loader) load() (domain.Vocabulary, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return domain.Vocabulary{}, fmt.Errorf("read vocabulary %s: %w", l.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// usually a truncate observed mid-write
		return domain.Vocabulary{}, fmt.Errorf("vocabulary %s: %w: file is empty", l.path, domain.ErrInvalidVocabulary)
	}
	var vocab domain.Vocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return domain.Vocabulary{}, fmt.Errorf("parse vocabulary %s: %w", l.path, err)
	}

	// Missing categories fall back to the built-in labels.
	defaults := domain.DefaultVocabulary()
	if vocab.Types == nil {
		vocab.Types = defaults.Types
	}
	if vocab.Actions == nil {
		vocab.Actions = defaults.Actions
	}
	if vocab.Severities == nil {
		vocab.Severities = defaults.Severities
	}
	if err := vocab.Validate(); err != nil {
		return domain.Vocabulary{}, fmt.Errorf("vocabulary %s: %w", l.path, err)
	}
	return vocab, nil
}
