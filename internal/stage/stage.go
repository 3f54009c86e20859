// Package stage implements the input stager (C3): naming, materializing
// and delivering candidate files, adapted from honggfuzz's
// files_writeBufToFile/input.c fresh-name and placeholder-substitution
// logic.
package stage

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Bluebear171/honggfuzz/internal/fio"
)

// PlaceholderDefault is the default file-placeholder token recognized in
// the target's argument vector, substituted with the candidate path at
// launch time.
const PlaceholderDefault = "___FILE___"

// FreshCandidatePath returns a path in workDir that doesn't exist yet
// with high probability: pid, unix seconds, a 62-bit random nonce, and
// ext. A collision is resolved by the caller's subsequent exclusive-
// create failing; the caller retries at the next iteration rather than
// this function looping, matching the original's single-shot retry-at-
// next-iteration discipline.
func FreshCandidatePath(rnd *rand.Rand, workDir, ext string) string {
	nonce := rnd.Int63() & ((1 << 62) - 1)
	name := fmt.Sprintf("%d.%d.%x.%s", os.Getpid(), time.Now().Unix(), nonce, ext)
	return filepath.Join(workDir, name)
}

// Materialize writes bytes to path, requiring exclusive creation (fails
// if path already exists), and unlinks any partial file left behind by a
// failed write. On success the file exists with exactly the given
// contents; on failure no file remains.
func Materialize(path string, bytes []byte) error {
	return fio.WriteBufToFile(path, bytes, fio.ExclusiveCreate)
}

// MaterializeTruncate is like Materialize but truncates an existing file
// instead of requiring exclusive creation, for destinations such as the
// dynamic best-copy file that are repeatedly overwritten in place.
func MaterializeTruncate(path string, bytes []byte) error {
	return fio.WriteBufToFile(path, bytes, fio.TruncateExisting)
}

// DeliverViaStdin writes all of bytes to w, retrying on short writes and
// EINTR-style interruption, for targets that consume their input on
// standard input rather than a named file.
func DeliverViaStdin(w io.Writer, bytes []byte) error {
	return fio.WriteAll(w, bytes)
}

// SubstitutePlaceholder returns a copy of argv with every occurrence of
// placeholder in each argument replaced by candidatePath. Per spec.md
// §4.3, the configuration must guarantee that either the placeholder
// appears somewhere in argv or stdin delivery is selected; this function
// performs the substitution blindly and leaves that precondition to the
// caller's config validation.
func SubstitutePlaceholder(argv []string, placeholder, candidatePath string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = strings.ReplaceAll(a, placeholder, candidatePath)
	}
	return out
}

// ContainsPlaceholder reports whether placeholder occurs in any argv
// entry.
func ContainsPlaceholder(argv []string, placeholder string) bool {
	for _, a := range argv {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}
