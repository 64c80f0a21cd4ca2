package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/anacrolix/log"

	"github.com/hydranode/hydranode/sched"
)

// Watcher reloads path whenever it changes and pushes the new limits into
// backend via SetLimits, so an operator can adjust bandwidth caps without
// restarting the process.
type Watcher struct {
	path    string
	backend *sched.Backend
	logger  log.Logger
	fsw     *fsnotify.Watcher
	stop    chan struct{}
}

// WatchLimits starts watching path for changes, applying reloaded limits
// to backend as they occur. Call Close to stop.
func WatchLimits(path string, backend *sched.Backend, logger log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{path: path, backend: backend, logger: logger, fsw: fsw, stop: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Levelf(log.Debug, "config: watch error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Levelf(log.Debug, "config: reload %s failed, keeping current limits: %v", w.path, err)
		return
	}
	w.backend.SetLimits(cfg.Limits.ToSched())
	w.logger.Levelf(log.Debug, "config: reloaded limits from %s", w.path)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fsw.Close()
}
