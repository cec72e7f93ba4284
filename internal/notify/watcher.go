package notify

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the checks file and swaps the evaluator's check set when
// it changes. A file that fails to parse leaves the previous checks in
// effect.
type Watcher struct {
	path      string
	evaluator *Evaluator
	watcher   *fsnotify.Watcher
	stopChan  chan struct{}
}

// NewWatcher creates a watcher for the checks file at path.
func NewWatcher(path string, evaluator *Evaluator) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:      path,
		evaluator: evaluator,
		watcher:   fsw,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins watching. Watching the directory rather than the file itself
// survives editors that replace the file on save.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.watchForChanges()
	log.Info().Str("path", w.path).Msg("Started watching checks file for changes")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	select {
	case <-w.stopChan:
		return
	default:
		close(w.stopChan)
	}
	w.watcher.Close()
}

func (w *Watcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) && event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce so a partially written file is not parsed mid-save.
			time.Sleep(100 * time.Millisecond)
			w.Reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Checks watcher error")

		case <-w.stopChan:
			return
		}
	}
}

// Reload re-reads the checks file and applies it only when it parses
// cleanly.
func (w *Watcher) Reload() {
	checks, err := LoadChecks(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).
			Msg("Checks file failed to parse, keeping previous checks")
		return
	}
	w.evaluator.SetChecks(checks)
	log.Info().Int("checks", len(checks)).Str("path", w.path).Msg("Reloaded checks file")
}
