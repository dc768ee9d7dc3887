package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/porticodev/portico/internal/logger"
)

// debounceWindow absorbs the editor write-rename-write bursts that fsnotify
// reports as separate events.
const debounceWindow = 250 * time.Millisecond

// Watcher reloads gateway settings when the config file changes on disk.
// Only settings are hot-reloaded; pool membership is fixed at construction.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	onload  func(*Config)
	log     *logger.StyledLogger
	done    chan struct{}
}

// NewWatcher watches path and invokes onReload with the freshly parsed
// configuration after each change. A parse or validation failure keeps the
// previous settings.
func NewWatcher(path string, log *logger.StyledLogger, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// watch the directory: editors replace files, which drops a watch on
	// the file itself
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		path:    path,
		onload:  onReload,
		log:     log,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	pending := make(chan struct{}, 1)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config change ignored, previous settings kept", "error", err)
		return
	}
	w.log.Info("configuration reloaded", "file", w.path)
	w.onload(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
