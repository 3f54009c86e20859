package corpus

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/Bluebear171/honggfuzz/internal/logger"
)

// Watch appends newly created regular files in the index's source
// directory to the live set, without touching existing entries' order or
// presence. This is a supplement to spec §4.1: a long-running session can
// pick up seeds an operator drops in mid-run. It is a no-op if the index
// wasn't loaded from a directory. Watch blocks until ctx is canceled.
func (idx *Index) Watch(ctx context.Context, maxFileSz int64) error {
	if idx.dir == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(idx.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			idx.maybeAdd(ctx, ev.Name, maxFileSz)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warningf(ctx, "corpus: watch error: %s", err)
		}
	}
}

func (idx *Index) maybeAdd(ctx context.Context, path string, maxFileSz int64) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if ok, _ := acceptable(info, maxFileSz); !ok {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, f := range idx.files {
		if f == path {
			return
		}
	}
	idx.files = append(idx.files, path)
	logger.Infof(ctx, "corpus: watch added new seed %q", path)
}
