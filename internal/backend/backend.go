// Package backend implements the execution backend (C7): launching a
// candidate against the target and classifying how it terminated.
// Grounded on botanist.Run's context-cancel-to-process-group-kill
// pattern (signals.go) and honggfuzz's arch_launchChild/arch_reapChild
// in the original posix backend.
package backend

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Bluebear171/honggfuzz/internal/logger"
	"github.com/Bluebear171/honggfuzz/internal/retry"
)

// Classification is the outcome of reaping a child process.
type Classification int

const (
	NormalExit Classification = iota
	Timeout
	Crash
	ExternalKilled
)

func (c Classification) String() string {
	switch c {
	case NormalExit:
		return "normal-exit"
	case Timeout:
		return "timeout"
	case Crash:
		return "crash"
	case ExternalKilled:
		return "external-killed"
	default:
		return "unknown"
	}
}

// CrashMetadata carries the out-of-band detail the supervisor passes
// through to the report collaborator without interpreting it itself,
// beyond the stack hash used for dedup/blacklist lookup.
type CrashMetadata struct {
	Signal     string
	ExitCode   int
	PC         uint64
	StackHash  uint64
	Addr       uint64
	ReportText string
}

// Result is what Reap returns for one launched iteration.
type Result struct {
	Classification Classification
	Counters       []uint64
	Crash          *CrashMetadata
}

// CounterSource collects per-run feedback counters and is opaque to the
// core beyond being queried once per iteration; real hardware
// perf-event/sanitizer-coverage wiring is out of scope (spec.md §1) and
// is represented only by this seam.
type CounterSource interface {
	// Dimensions returns the number of enabled feedback dimensions.
	Dimensions() int
	// Collect returns this run's per-dimension counters.
	Collect(pid int) ([]uint64, error)
}

// NopCounterSource is a CounterSource that always reports always-zero
// counters, the default when no coverage backend is wired. Dims must
// track config.EnabledDimensions(), since the feedback store seeds
// best_counters at that width (feedback.SeedInitial) and TryUpdate's
// dominates check compares candidate and best counters dimension by
// dimension; a mismatched width makes every candidate non-dominating
// forever. Dims <= 0 is treated as 1.
type NopCounterSource struct{ Dims int }

func (n NopCounterSource) Dimensions() int {
	if n.Dims <= 0 {
		return 1
	}
	return n.Dims
}

func (n NopCounterSource) Collect(int) ([]uint64, error) {
	return make([]uint64, n.Dimensions()), nil
}

// Config is the subset of harness configuration the backend needs to
// launch and reap a child.
type Config struct {
	Argv          []string
	Env           []string
	Timeout       time.Duration
	RlimitAS      uint64 // MiB; 0 = no limit
	NullifyStdio  bool
	StdinInput    bool
	StdinBytes    []byte
	CandidatePath string
}

// execCommand is a seam for tests to substitute a self-reinvocation
// helper process instead of a real target binary.
var execCommand = exec.Command

// posixBackend is the one concrete, portable reference implementation:
// os/exec plus process-group semantics for the timeout path.
type posixBackend struct {
	counters CounterSource
}

// New returns a posixBackend. A nil CounterSource defaults to
// NopCounterSource.
func New(counters CounterSource) *posixBackend {
	if counters == nil {
		counters = NopCounterSource{}
	}
	return &posixBackend{counters: counters}
}

// ArchInit performs one-time backend setup. The posix reference backend
// has none beyond validating the configured timeout, but the hook
// exists so a real perf-event/sanitizer backend has somewhere to open
// its file descriptors.
func (b *posixBackend) ArchInit(cfg Config) error {
	if cfg.Timeout <= 0 {
		return errors.New("backend: timeout must be positive")
	}
	return nil
}

// Launch starts the target with argv already placeholder-substituted,
// applying resource limits, stdio nullification, and stdin redirection,
// then blocks until the child terminates or the timeout elapses. On
// timeout it kills the whole process group so nothing the child spawned
// is orphaned, mirroring botanist.Run.
func (b *posixBackend) Launch(ctx context.Context, cfg Config) (Result, error) {
	if len(cfg.Argv) == 0 {
		return Result{}, errors.New("backend: empty argv")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd := execCommand(cfg.Argv[0], cfg.Argv[1:]...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	// Setpgid isolates the child (and anything it forks) into its own
	// process group so the timeout path can kill all of it at once.
	// Pdeathsig is an independent concern: it asks the kernel to kill the
	// child if this harness process itself dies first, regardless of
	// whether an address-space limit is configured.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}

	if cfg.NullifyStdio {
		devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return Result{}, err
		}
		defer devnull.Close()
		cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	}

	var stdinPipe io.WriteCloser
	if cfg.StdinInput {
		p, err := cmd.StdinPipe()
		if err != nil {
			return Result{}, err
		}
		stdinPipe = p
	}

	var stderrBuf bytes.Buffer
	if cmd.Stderr == nil {
		cmd.Stderr = &stderrBuf
	}

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	if cfg.RlimitAS > 0 {
		if err := applyRlimitAS(cmd.Process.Pid, cfg.RlimitAS); err != nil {
			logger.Warningf(ctx, "backend: couldn't apply rlimit_as to pid %d: %s", cmd.Process.Pid, err)
		}
	}

	if stdinPipe != nil {
		go func() {
			stdinPipe.Write(cfg.StdinBytes)
			stdinPipe.Close()
		}()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	counters, _ := b.counters.Collect(cmd.Process.Pid)

	select {
	case err := <-done:
		return classify(cmd, err, counters, stderrBuf.String())
	case <-runCtx.Done():
		killProcessGroup(ctx, cmd.Process.Pid)
		<-done
		return Result{Classification: Timeout, Counters: counters}, nil
	}
}

// killProcessGroup retries the process-group kill a few times with no
// delay, the Go analogue of the `while (errno == EINTR) continue;`
// retry honggfuzz wraps its own kill(2) calls in; a signal arriving
// mid-syscall is the only case this needs to paper over, since the
// target process either exists (and dies) or doesn't (ESRCH, in which
// case the retries are harmless no-ops).
func killProcessGroup(ctx context.Context, pid int) {
	backoff := retry.WithMaxRetries(&retry.ZeroBackoff{}, 3)
	if err := retry.Retry(ctx, backoff, func() error {
		return syscall.Kill(-pid, syscall.SIGKILL)
	}); err != nil {
		logger.Warningf(ctx, "backend: couldn't kill process group %d: %s", pid, err)
	}
}

func classify(cmd *exec.Cmd, waitErr error, counters []uint64, stderrText string) (Result, error) {
	if waitErr == nil {
		return Result{Classification: NormalExit, Counters: counters}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		status, ok := exitErr.Sys().(syscall.WaitStatus)
		if !ok {
			return Result{Classification: ExternalKilled, Counters: counters}, nil
		}
		if status.Signaled() {
			sig := status.Signal()
			report := renderReport(cmd, sig, stderrText)
			return Result{
				Classification: Crash,
				Counters:       counters,
				Crash: &CrashMetadata{
					Signal:     sig.String(),
					StackHash:  stackHash(sig, stderrText),
					ReportText: report,
				},
			}, nil
		}
		// Non-zero, non-signalled exit: treated as an infrastructural
		// failure per spec.md §7 kind 5, not a target crash.
		return Result{
			Classification: ExternalKilled,
			Counters:       counters,
			Crash: &CrashMetadata{
				ExitCode: status.ExitStatus(),
			},
		}, nil
	}
	return Result{}, waitErr
}

func renderReport(cmd *exec.Cmd, sig os.Signal, stderrText string) string {
	var b strings.Builder
	b.WriteString("SIGNAL: " + sig.String() + "\n")
	b.WriteString("CMD: " + strings.Join(cmd.Args, " ") + "\n")
	if stderrText != "" {
		b.WriteString("STDERR:\n" + stderrText)
	}
	return b.String()
}

// stackHash stands in for a real backtrace digest, which would require
// symbolication support this reference posix backend doesn't have; it
// hashes the signal and any captured stderr text so that repeated
// crashes of the same shape still dedup and blacklist-match
// consistently, satisfying the "opaque to the core" contract of §4.7.
func stackHash(sig os.Signal, stderrText string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(sig.String()))
	h.Write([]byte(stderrText))
	return h.Sum64()
}

func applyRlimitAS(pid int, mib uint64) error {
	bytesLimit := mib * 1024 * 1024
	return unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{
		Cur: bytesLimit,
		Max: bytesLimit,
	}, nil)
}
