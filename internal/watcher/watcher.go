package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"image-compressor-go/internal/scanner"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long a path must stay quiet before it is reported.
const DefaultDebounce = 300 * time.Millisecond

// Event reports a supported image that appeared or changed.
type Event struct {
	Image scanner.ImageInfo
}

// Watcher monitors directory trees for new or modified images.
type Watcher struct {
	scanner  *scanner.Scanner
	logger   *logrus.Logger
	fs       *fsnotify.Watcher
	events   chan Event
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// New creates a watcher covering every directory below each of dirs.
func New(sc *scanner.Scanner, dirs []string, log *logrus.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		scanner:  sc,
		logger:   log,
		fs:       fsWatcher,
		events:   make(chan Event, 100),
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}
	return w, nil
}

// Events returns the channel images are reported on. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run processes filesystem notifications until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warnf("Failed to watch new directory %s: %v", event.Name, err)
			}
			// Files may have landed before the watch was added.
			for _, img := range w.scanner.Scan(event.Name).Images {
				w.schedule(img.FilePath)
			}
			return
		}
	}

	if filepath.Base(event.Name)[0] == '.' || !w.scanner.Supports(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// schedule reports path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.pending, path)
		if w.closed {
			return
		}

		img, ok := w.scanner.Classify(path)
		if !ok {
			return
		}
		select {
		case w.events <- Event{Image: img}:
			w.logger.WithField("file", path).Debug("Image detected")
		default:
			w.logger.WithField("file", path).Warn("Watcher event channel full, dropping event")
		}
	})
}

// addTree watches root and every directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", path, err)
		}
		w.logger.Debugf("Watching folder: %s", path)
		return nil
	})
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	close(w.events)
	w.mu.Unlock()

	w.fs.Close()
}
