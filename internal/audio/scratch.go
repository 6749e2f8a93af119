package audio

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"scriberr/pkg/logger"
)

// ScratchWatcher removes orphaned sub-segment files left behind in a job's
// scratch directory when its worker process was killed mid-job (e.g. a
// revoked job whose cleanup step never ran). It is a best-effort sweeper,
// not a correctness requirement: normal job completion removes its own
// sub-segment files as they are consumed (§4.F cleanup rule 9).
type ScratchWatcher struct {
	watcher *fsnotify.Watcher
	maxAge  time.Duration
	done    chan struct{}
}

// NewScratchWatcher starts watching dir for create events and periodically
// sweeps files older than maxAge.
func NewScratchWatcher(dir string, maxAge time.Duration) (*ScratchWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	sw := &ScratchWatcher{watcher: w, maxAge: maxAge, done: make(chan struct{})}
	go sw.run(dir)
	return sw, nil
}

func (s *ScratchWatcher) run(dir string) {
	ticker := time.NewTicker(s.maxAge / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("scratch watcher error", "error", err)
		case <-ticker.C:
			s.sweep(dir)
		}
	}
}

func (s *ScratchWatcher) sweep(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("scratch sweep failed to read dir", "dir", dir, "error", err)
		return
	}
	cutoff := time.Now().Add(-s.maxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wav") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				logger.Warn("failed to remove orphaned scratch file", "path", path, "error", err)
			} else {
				logger.Info("removed orphaned scratch file", "path", path)
			}
		}
	}
}

// Close stops the watcher.
func (s *ScratchWatcher) Close() error {
	close(s.done)
	return s.watcher.Close()
}
