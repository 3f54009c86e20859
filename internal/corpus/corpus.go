// Package corpus implements the seed-input index (C1): enumerating seed
// files and picking one uniformly at random, adapted from honggfuzz's
// files_init/files_readdir in files.c.
package corpus

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/Bluebear171/honggfuzz/internal/logger"
)

// Placeholder entries used when no real corpus exists but the harness can
// still run because dynamic mode or an external mutator creates files.
const (
	DynamicFilePlaceholder = "DYNAMIC_FILE"
	CreatedFilePlaceholder = "CREATED"
)

// Index is the seed-path set. Reads (Len/At/PickRandom) share a read
// lock and wait only while the optional fsnotify watcher holds the write
// lock to append; Watch only ever appends.
type Index struct {
	mu    sync.RWMutex
	files []string
	dir   string // non-empty only when loaded from a directory
}

// Load builds an Index from a single file or a directory of files, per
// the rules in spec §4.1. When inputPath is empty, dynamicMode or
// externalMode being set yields a single synthetic placeholder entry
// instead of an error. A directory with no usable files is an error in
// every mode; no placeholder is substituted for it.
func Load(ctx context.Context, inputPath string, maxFileSz int64, dynamicMode, externalMode bool) (*Index, error) {
	if inputPath == "" {
		if dynamicMode {
			return &Index{files: []string{DynamicFilePlaceholder}}, nil
		}
		if externalMode {
			return &Index{files: []string{CreatedFilePlaceholder}}, nil
		}
		return nil, fmt.Errorf("corpus: no input file/dir specified")
	}

	st, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("corpus: couldn't stat %q: %w", inputPath, err)
	}

	if st.Mode().IsRegular() {
		if st.Size() > maxFileSz {
			return nil, fmt.Errorf("corpus: %q is bigger than max_file_size (%d > %d)", inputPath, st.Size(), maxFileSz)
		}
		return &Index{files: []string{inputPath}}, nil
	}

	if !st.IsDir() {
		return nil, fmt.Errorf("corpus: %q is neither a regular file nor a directory", inputPath)
	}

	return loadDir(ctx, inputPath, maxFileSz)
}

func loadDir(ctx context.Context, dir string, maxFileSz int64) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus: couldn't open dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil {
			logger.Warningf(ctx, "corpus: couldn't stat %q, skipping", path)
			continue
		}
		if ok, reason := acceptable(info, maxFileSz); !ok {
			logger.Debugf(ctx, "corpus: skipping %q: %s", path, reason)
			continue
		}
		files = append(files, path)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("corpus: directory %q doesn't contain any usable regular files", dir)
	}
	logger.Infof(ctx, "corpus: %d input files loaded from %q", len(files), dir)
	return &Index{files: files, dir: dir}, nil
}

func acceptable(info os.FileInfo, maxFileSz int64) (bool, string) {
	if !info.Mode().IsRegular() {
		return false, "not a regular file"
	}
	if info.Size() == 0 {
		return false, "empty"
	}
	if info.Size() > maxFileSz {
		return false, "exceeds max_file_size"
	}
	return true, ""
}

// Len returns the number of entries currently in the index.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.files)
}

// At returns the path of entry i.
func (idx *Index) At(i int) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.files[i]
}

// PickRandom returns a uniformly random valid index in [0, Len()), with no
// bias toward recently added seeds.
func (idx *Index) PickRandom(rnd *rand.Rand) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return rnd.Intn(len(idx.files))
}
