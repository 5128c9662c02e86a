// Package watch provides a "watch a drop directory, debounce, hand off"
// loop: new files arriving under the directory tree are passed to a handler
// once they stop changing. The debounce window exists because uploads and
// copies produce a burst of write events before the file is complete.
//
// Typical usage:
//
//	w := watch.New(dir, watch.Options{Debounce: time.Second})
//	w.Run(ctx, func(ctx context.Context, ref string) error {
//		_, err := pipeline.ProcessFile(ctx, ref, time.Now())
//		return err
//	})
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aecintel/meropipe/extractor"
)

// Handler receives a settled file as a slash-separated ref relative to the
// watched directory. Handler errors are counted and logged, never fatal to
// the watch loop.
type Handler func(ctx context.Context, ref string) error

// Options tunes the watcher behaviour.
type Options struct {
	// Debounce is the quiet period after the last write event before the
	// handler fires for a file. Default: 2s.
	Debounce time.Duration

	// Extensions limits which files are handled, without the dot.
	// Default: the extraction router's supported set.
	Extensions []string

	// ScanExisting enqueues files already present under the directory
	// when Run starts, so a backlog drains on restart.
	ScanExisting bool

	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if len(o.Extensions) == 0 {
		o.Extensions = extractor.SupportedExtensions()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher watches a directory tree for arriving files. Handlers run
// sequentially, one file at a time, in arrival order.
type Watcher struct {
	dir  string
	opts Options
	exts map[string]bool

	mu     sync.Mutex
	timers map[string]*time.Timer

	// Counters for observability (exported via Stats).
	events  atomic.Int64
	handled atomic.Int64
	errors  atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Events  int64 `json:"events"`
	Handled int64 `json:"handled"`
	Errors  int64 `json:"errors"`
}

// New creates a Watcher over dir. Call Run to start the loop.
func New(dir string, opts Options) *Watcher {
	opts.defaults()
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Watcher{
		dir:    dir,
		opts:   opts,
		exts:   exts,
		timers: make(map[string]*time.Timer),
	}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Events:  w.events.Load(),
		Handled: w.handled.Load(),
		Errors:  w.errors.Load(),
	}
}

// Run blocks until ctx is cancelled, handling settled files as they arrive.
// Subdirectories are watched recursively, including ones created while
// running.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	log := w.opts.Logger

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}

	// Settled files funnel through one channel so handlers run
	// sequentially on this goroutine. done releases timer callbacks that
	// fire while Run is returning and find the channel full.
	ready := make(chan string, 64)
	done := make(chan struct{})
	defer close(done)

	if w.opts.ScanExisting {
		w.scanExisting(ready, log)
	}

	log.Info("watch: started", "dir", w.dir, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped")
			w.stopTimers()
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.events.Add(1)
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						log.Warn("watch: add directory failed", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				w.schedule(ev.Name, ready, done)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			log.Warn("watch: fsnotify error", "error", err)

		case path := <-ready:
			ref, err := filepath.Rel(w.dir, path)
			if err != nil {
				continue
			}
			ref = filepath.ToSlash(ref)
			log.Info("watch: file settled", "ref", ref)
			if err := handle(ctx, ref); err != nil {
				w.errors.Add(1)
				log.Error("watch: handler failed", "ref", ref, "error", err)
				continue
			}
			w.handled.Add(1)
		}
	}
}

// schedule (re)starts the per-file debounce timer. Each new write event
// resets the window.
func (w *Watcher) schedule(path string, ready chan<- string, done <-chan struct{}) {
	if !w.supported(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-done:
		}
	})
}

func (w *Watcher) supported(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return w.exts[ext]
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) scanExisting(ready chan string, log *slog.Logger) {
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.supported(path) {
			return err
		}
		select {
		case ready <- path:
		default:
			log.Warn("watch: backlog full, skipping existing file", "path", path)
		}
		return nil
	})
	if err != nil {
		log.Warn("watch: scan of existing files failed", "error", err)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
