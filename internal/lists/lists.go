// Package lists parses the newline-delimited stack-hash blacklist and
// symbol allow/deny lists, adapted from honggfuzz's
// files_parseBlacklist/files_parseSymbolsBlacklist/files_parseSymbolsWhitelist
// in files.c.
package lists

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Blacklist is a sorted set of stack hashes that should suppress crash
// reporting, stored so lookups can binary-search.
type Blacklist struct {
	hashes []uint64
}

// LoadBlacklist reads a file of ascending, newline-delimited hex stack
// hashes, one per line. The file must already be sorted ascending; this
// mirrors the original's strict check (it refuses to proceed and directs
// the operator to a sort helper instead of sorting for them).
func LoadBlacklist(path string) (*Blacklist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lists: couldn't open blacklist %q: %w", path, err)
	}
	defer f.Close()

	var hashes []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseUint(line, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("lists: invalid hex hash %q in blacklist: %w", line, err)
		}
		if len(hashes) > 0 && hashes[len(hashes)-1] > v {
			return nil, fmt.Errorf("lists: blacklist file %q is not sorted ascending", path)
		}
		hashes = append(hashes, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("lists: blacklist file %q is empty", path)
	}
	return &Blacklist{hashes: hashes}, nil
}

// Contains reports whether hash appears in the blacklist, via binary
// search since the list is kept sorted.
func (b *Blacklist) Contains(hash uint64) bool {
	if b == nil {
		return false
	}
	i := sort.Search(len(b.hashes), func(i int) bool { return b.hashes[i] >= hash })
	return i < len(b.hashes) && b.hashes[i] == hash
}

// SymbolList is a simple set of symbol names used for stack-frame
// allow/deny filtering by the (out-of-scope) crash report formatter.
type SymbolList map[string]bool

// LoadSymbolList reads a newline-delimited symbol-name file; each entry
// must be at least 3 characters, matching the original's guard against
// truncated/garbage entries.
func LoadSymbolList(path string) (SymbolList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lists: couldn't open %q: %w", path, err)
	}
	defer f.Close()

	set := SymbolList{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) < 3 {
			return nil, fmt.Errorf("lists: symbol %q too short (must be >= 3 chars)", line)
		}
		set[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("lists: symbol list %q is empty", path)
	}
	return set, nil
}
