package config

import (
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

var _ Source = &Watcher{}

// Watcher is a Source that reloads its settings file whenever it changes.
// If a reload fails,
// the previous settings stay in effect.
type Watcher struct {
	path string
	fw   *fsnotify.Watcher
	done chan struct{}

	mu  sync.RWMutex
	cur Settings
}

// Watch loads the settings file at path and keeps watching it.
// The caller must Close the Watcher when done.
func Watch(path string) (*Watcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", path)
	}

	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}

	// Editors often replace files by renaming,
	// which a watch on the file itself would not survive.
	dir := filepath.Dir(path)
	err = fw.Add(dir)
	if err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watching %s", dir)
	}

	w := &Watcher{
		path: path,
		fw:   fw,
		done: make(chan struct{}),
		cur:  s,
	}
	go w.run()
	return w, nil
}

// Settings implements Source.
func (w *Watcher) Settings() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			s, err := Load(w.path)
			if err != nil {
				log.Printf("ERROR reloading %s: %s", w.path, err)
				continue
			}
			w.mu.Lock()
			w.cur = s
			w.mu.Unlock()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("ERROR watching %s: %s", w.path, err)
		}
	}
}
