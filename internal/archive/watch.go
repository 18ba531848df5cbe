package archive

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/refind/internal/debug"
	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/store"
	"github.com/standardbeagle/refind/internal/types"
)

// watchDebounce is how long a capture file must stay quiet before it is
// ingested. Device pulls arrive as a create followed by a burst of
// writes; only the settled file parses.
const watchDebounce = 200 * time.Millisecond

// Watch ingests new capture files as they appear in dir until ctx is
// canceled. onIngest runs once per settled file, on success and on
// failure; a nil onIngest just feeds the store. The call blocks for the
// lifetime of the watch and returns nil on cancellation.
func Watch(ctx context.Context, st *store.Store, dir string, onIngest func(Entry, types.SnapshotID, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.NewArchiveError(dir, "watch", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return apperrors.NewArchiveError(dir, "watch", err)
	}
	debug.LogArchive("watching %s\n", dir)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	settle := func(path string) {
		mu.Lock()
		delete(timers, path)
		mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		device, capturedAt, ok := ParseFilename(path)
		if !ok {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			// Gone again before it settled.
			return
		}
		entry := Entry{Path: path, Device: device, CapturedAt: capturedAt, Size: info.Size()}
		out := ingestOne(st, entry)
		debug.LogArchive("watch ingested %s -> %s\n", path, out.SnapshotID)
		if onIngest != nil {
			onIngest(entry, out.SnapshotID, out.Err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := event.Name
			if _, _, ok := ParseFilename(path); !ok {
				continue
			}

			// Latest event wins; the timer restarts on every write.
			mu.Lock()
			if t, live := timers[path]; live {
				t.Stop()
			}
			timers[path] = time.AfterFunc(watchDebounce, func() { settle(path) })
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debug.LogArchive("watch error: %v\n", err)
		}
	}
}
