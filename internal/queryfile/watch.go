package queryfile

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher invalidates query files when they change on disk, so the next
// Prepare reloads them without polling.
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	files   map[string][]*QueryFile
	dirs    map[string]bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	changes int
	changed chan string
}

// NewWatcher creates a Watcher. A nil logger disables logging.
func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher: w,
		logger:  logger,
		files:   make(map[string][]*QueryFile),
		dirs:    make(map[string]bool),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		changed: make(chan string, 16),
	}, nil
}

// Add tracks qf. Its directory is watched, since editors often replace
// files rather than writing them in place.
func (w *Watcher) Add(qf *QueryFile) error {
	path := qf.Path()
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[path] = append(w.files[path], qf)
	return nil
}

// Start runs the event loop in a goroutine until ctx is done or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

// Changed delivers the path of each invalidated file. Notifications are
// dropped while the buffer is full.
func (w *Watcher) Changed() <-chan string {
	return w.changed
}

// Changes returns the number of invalidations performed.
func (w *Watcher) Changes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changes
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("query file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	w.mu.Lock()
	files := w.files[path]
	if len(files) > 0 {
		w.changes++
	}
	w.mu.Unlock()

	for _, qf := range files {
		qf.Invalidate()
	}
	if len(files) > 0 {
		w.logger.Debug("query file changed",
			zap.String("file", path),
			zap.String("op", event.Op.String()))
		select {
		case w.changed <- path:
		default:
		}
	}
}
