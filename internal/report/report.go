// Package report renders and appends crash reports, adapted from the
// report-file field on honggfuzz's fuzzer_t in fuzz.c. The exact
// textual layout is this implementation's own choice; spec.md leaves
// crash-report internals out of scope.
package report

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Bluebear171/honggfuzz/internal/backend"
)

// DefaultFileName is the default HONGGFUZZ.REPORT.TXT-compatible
// append-only report file name within the configured workspace.
const DefaultFileName = "HONGGFUZZ.REPORT.TXT"

// Entry is one crash's worth of report content.
type Entry struct {
	OrigFileName  string
	CandidatePath string
	CandidateSize int
	StackHash     uint64
	Crash         *backend.CrashMetadata
	Verified      bool
}

// Render formats e as a single human-readable block, matching the
// shape of the per-crash sections honggfuzz appends to its report file.
func Render(e Entry, at time.Time) string {
	return fmt.Sprintf(
		"=====================================================\n"+
			"TIME: %s\n"+
			"SEED FILE: %s\n"+
			"CANDIDATE: %s (%s)\n"+
			"STACK HASH: %016x\n"+
			"VERIFIED: %t\n"+
			"%s\n",
		at.Format(time.RFC3339),
		e.OrigFileName,
		e.CandidatePath,
		humanize.Bytes(uint64(e.CandidateSize)),
		e.StackHash,
		e.Verified,
		reportBody(e.Crash),
	)
}

func reportBody(c *backend.CrashMetadata) string {
	if c == nil {
		return ""
	}
	if c.ReportText != "" {
		return c.ReportText
	}
	return fmt.Sprintf("SIGNAL: %s\nEXIT CODE: %d\n", c.Signal, c.ExitCode)
}

// Append renders e and appends it to path, creating the file if it
// doesn't yet exist.
func Append(path string, e Entry, at time.Time) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("report: couldn't open %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(Render(e, at)); err != nil {
		return fmt.Errorf("report: couldn't write to %q: %w", path, err)
	}
	return nil
}
