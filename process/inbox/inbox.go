// Package inbox ingests screenshots dropped into a directory. Existing files
// are processed on start, new ones as they appear. Processed files move to
// processed/, rejected ones to failed/.
package inbox

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"lapboard/models"
	"lapboard/pkg/ingest"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Processor runs one upload through the pipeline.
type Processor interface {
	Process(ctx context.Context, up ingest.Upload) (*models.LapRecord, error)
}

// Watcher feeds inbox files to a Processor with a small worker pool.
type Watcher struct {
	dir      string
	proc     Processor
	workers  int
	settle   time.Duration
	log      *zap.Logger
	onResult func(name string, rec *models.LapRecord, err error)

	mu     sync.Mutex
	queued map[string]bool
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithWorkers sets the number of concurrent OCR workers.
func WithWorkers(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// WithSettle sets how long a new file must stay unchanged before it is read.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// New returns a Watcher for dir.
func New(dir string, proc Processor, opts ...Option) *Watcher {
	w := &Watcher{
		dir:     dir,
		proc:    proc,
		workers: 2,
		settle:  300 * time.Millisecond,
		log:     zap.NewNop(),
		queued:  map[string]bool{},
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run blocks until ctx is cancelled or the fs watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, processedDir), filepath.Join(w.dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.Info("watching inbox", zap.String("dir", w.dir), zap.Int("workers", w.workers))

	fileCh := make(chan string, 256)
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				w.processFile(ctx, name)
			}
		}()
	}
	defer wg.Wait()
	defer close(fileCh)

	for _, name := range w.listImageFiles() {
		if !w.claim(name) {
			continue
		}
		select {
		case fileCh <- name:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// debounce: a file is queued once no event touched it for the settle time
	pending := map[string]time.Time{}
	tick := w.settle / 2
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !isSupportedExt(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) >= w.settle {
					delete(pending, name)
					if !w.claim(name) {
						continue
					}
					select {
					case fileCh <- name:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// claim marks name as queued; false means a worker already has it.
func (w *Watcher) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queued[name] {
		return false
	}
	w.queued[name] = true
	return true
}

func (w *Watcher) release(name string) {
	w.mu.Lock()
	delete(w.queued, name)
	w.mu.Unlock()
}

func (w *Watcher) processFile(ctx context.Context, name string) {
	defer w.release(name)
	full := filepath.Join(w.dir, name)
	data, err := os.ReadFile(full)
	if err != nil {
		// already moved by an earlier event for the same file
		if !os.IsNotExist(err) {
			w.log.Warn("read inbox file", zap.String("file", name), zap.Error(err))
		}
		return
	}
	rec, err := w.proc.Process(ctx, ingest.Upload{
		Name:        name,
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
		Data:        data,
	})
	if err != nil && ctx.Err() != nil {
		// shutting down, leave the file for the next run
		return
	}
	target := processedDir
	if err != nil {
		target = failedDir
		w.log.Error("inbox file rejected", zap.String("file", name), zap.Error(err))
	} else {
		w.log.Info("inbox file ingested", zap.String("file", name), zap.String("lap_time", rec.LapTime))
	}
	if mvErr := moveFile(full, filepath.Join(w.dir, target, name)); mvErr != nil {
		w.log.Warn("move inbox file", zap.String("file", name), zap.Error(mvErr))
	}
	if w.onResult != nil {
		w.onResult(name, rec, err)
	}
}

func (w *Watcher) listImageFiles() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func isSupportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// moveFile renames src to dst, falling back to copy+remove across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
