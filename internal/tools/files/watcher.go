package files

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher mirrors externally-triggered filesystem changes into a FileTracker
// so the read-before-write invariant catches an out-of-band edit as soon as
// it happens, rather than waiting for the next CheckWrite's mtime comparison.
// It is optional: a tracker with no attached Watcher still enforces the
// invariant correctly via CheckWrite's own os.Stat call, just with a later
// detection point.
type Watcher struct {
	tracker *FileTracker
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	done    chan struct{}
}

// NewWatcher starts an fsnotify watcher that invalidates tracker entries for
// any watched path touched outside the tracker's own RecordWrite/RecordUpdate
// calls. Call Watch for each path the tracker records a read for, and Close
// when the owning runtime shuts down.
func NewWatcher(tracker *FileTracker, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{tracker: tracker, fsw: fsw, logger: logger, done: make(chan struct{})}
	go w.run()
	return w, nil
}

// Watch begins watching path for external modification. Safe to call
// repeatedly for the same path; fsnotify dedupes on its own watch list.
func (w *Watcher) Watch(path string) {
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("file watcher could not watch path", "path", path, "error", err)
	}
}

// Unwatch stops watching path, e.g. once the tracker forgets it.
func (w *Watcher) Unwatch(path string) {
	_ = w.fsw.Remove(path)
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				// An edit landed on disk that didn't go through RecordWrite/
				// RecordUpdate: forget the tracked read so the next CheckWrite
				// demands a fresh read instead of comparing a now-stale mtime.
				w.tracker.Clear(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher and releases its inotify/kqueue handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
