package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// File reads the theme from a file containing "light" or "dark" and
// reports every write that leaves a valid value behind.
type File struct {
	path   string
	logger *log.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewFile(path string) *File {
	return &File{path: path, logger: log.ForService("source")}
}

func (f *File) Current() (theme.Theme, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return theme.Light, fmt.Errorf("reading theme file: %w", err)
	}
	return theme.Parse(string(data))
}

// Start watches the file's directory, so editors that replace the file
// atomically are followed too.
func (f *File) Start(cb Callback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		return fmt.Errorf("file source already started")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", f.path, err)
	}
	f.watcher = w
	f.done = make(chan struct{})

	f.wg.Add(1)
	go f.loop(w, f.done, cb)
	f.logger.Infof("watching theme file %s", f.path)
	return nil
}

func (f *File) loop(w *fsnotify.Watcher, done <-chan struct{}, cb Callback) {
	defer f.wg.Done()
	target := filepath.Clean(f.path)
	for {
		select {
		case <-done:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			t, err := f.Current()
			if err != nil {
				f.logger.Debugf("ignoring %s: %v", event.Op, err)
				continue
			}
			cb(t)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warnf("theme file watcher error: %v", err)
		}
	}
}

func (f *File) Stop() error {
	f.mu.Lock()
	w, done := f.watcher, f.done
	f.watcher, f.done = nil, nil
	f.mu.Unlock()
	if w == nil {
		return nil
	}
	close(done)
	err := w.Close()
	f.wg.Wait()
	return err
}
