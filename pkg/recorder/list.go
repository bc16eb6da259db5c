package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/thfi/scriptcast/pkg/config"
)

// List returns the metadata of every recorded session under
// cfg.RecordingDir, most recently started first. It adapts
// session.Manager's GetSession/listing approach to a plain
// directory-of-recordings layout.
func List(cfg *config.Config) ([]Meta, error) {
	return listDir(cfg.RecordingDir)
}

func listDir(dir string) ([]Meta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("recorder: reading recording directory: %w", err)
	}

	var metas []Meta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m Meta
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		metas = append(metas, m)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].StartedAt.After(metas[j].StartedAt)
	})
	return metas, nil
}

// Watcher notifies a callback whenever a file inside a watched
// directory changes on disk, adapted from the fsnotify-based
// ControlDirWatcher (pkg/session/control_watcher.go) to watch a
// recording directory instead of a control-pipe directory. TailSession
// uses it to watch a single session's directory for the --watch
// live-tail mode; List does not use it.
type Watcher struct {
	watcher *fsnotify.Watcher
	onEvent func(path string)
	done    chan struct{}
}

// NewWatcher builds a Watcher over dir. onEvent is called with the
// changed file's path whenever fsnotify reports a write.
func NewWatcher(dir string, onEvent func(path string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("recorder: creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("recorder: watching directory %s: %w", dir, err)
	}
	return &Watcher{watcher: fw, onEvent: onEvent, done: make(chan struct{})}, nil
}

// Run processes fsnotify events until Stop is called.
func (w *Watcher) Run(ctx *config.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				w.onEvent(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			ctx.Tracef("recorder: watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Stop terminates Run and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}
