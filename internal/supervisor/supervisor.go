// Package supervisor implements one fuzzing iteration (C5): picking a
// seed, preparing a candidate under the configured mode, launching it
// through the execution backend, and feeding the result back into the
// crash report and (in dynamic mode) the feedback store. Adapted from
// honggfuzz's fuzz_fuzzLoop in fuzz.c.
package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/Bluebear171/honggfuzz/internal/backend"
	"github.com/Bluebear171/honggfuzz/internal/config"
	"github.com/Bluebear171/honggfuzz/internal/corpus"
	"github.com/Bluebear171/honggfuzz/internal/dict"
	"github.com/Bluebear171/honggfuzz/internal/feedback"
	"github.com/Bluebear171/honggfuzz/internal/fio"
	"github.com/Bluebear171/honggfuzz/internal/lists"
	"github.com/Bluebear171/honggfuzz/internal/logger"
	"github.com/Bluebear171/honggfuzz/internal/mutate"
	"github.com/Bluebear171/honggfuzz/internal/report"
	"github.com/Bluebear171/honggfuzz/internal/retry"
	"github.com/Bluebear171/honggfuzz/internal/stage"
)

// externalMutatorRetries bounds how many times a failed external-mutator
// spawn is retried before prepareExternal gives up, the Go analogue of
// honggfuzz's EINTR retry loop around its own subprocess_run calls.
const externalMutatorRetries = 3

// Mode selects how a candidate is prepared each iteration.
type Mode int

const (
	// Plain reads a seed, mutates it internally, and materializes it.
	Plain Mode = iota
	// Dynamic seeds from the feedback store's current best instead of a
	// fresh seed read every time, and feeds results back into the store.
	Dynamic
	// External hands the candidate to an external mutator process
	// instead of running the internal mutation engine.
	External
)

// VerifierIterations is the number of times a crashing candidate is
// re-run to confirm its stack hash before counting it as verified,
// matching honggfuzz's _HF_VERIFIER_ITER.
const VerifierIterations = 5

// Stats are the counters one Supervisor maintains across its own
// iterations. They are plain fields updated without synchronization, so
// each worker's Supervisor has its own Stats; cross-worker uniqueness of
// crashes is tracked separately by CrashSeen.
type Stats struct {
	Iterations      uint64
	CrashesCnt      uint64
	UniqueCrashesCnt uint64
	VerifiedCrashesCnt uint64
	TimeoutedCnt    uint64
}

// Supervisor runs one iteration of the fuzzing loop at a time. It is not
// safe for concurrent use by multiple goroutines on its own; the pool
// package is expected to construct one Supervisor (sharing the Index,
// Store, Blacklist, CrashSeen) per worker, or to serialize calls to Run.
type Supervisor struct {
	cfg     *config.Config
	idx     *corpus.Index
	store   *feedback.Store
	backend backendLauncher
	black   *lists.Blacklist
	dict    [][]byte
	rnd     *rand.Rand
	seen    *CrashSeen

	reportPath string

	Stats Stats
}

type backendLauncher interface {
	Launch(ctx context.Context, cfg backend.Config) (backend.Result, error)
}

// CrashSeen is the cross-worker set of stack hashes already recorded, so
// "unique" in save_all/report bookkeeping means "first time any worker
// has seen this hash", not just "first time this worker has".
type CrashSeen struct {
	mu   sync.Mutex
	seen map[uint64]bool
}

// NewCrashSeen returns an empty CrashSeen set.
func NewCrashSeen() *CrashSeen {
	return &CrashSeen{seen: make(map[uint64]bool)}
}

// MarkSeen records hash and reports whether this is the first time it's
// been marked.
func (c *CrashSeen) MarkSeen(hash uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[hash] {
		return false
	}
	c.seen[hash] = true
	return true
}

// New constructs a Supervisor. dictTokens and black may be nil; seen must
// not be nil (share one CrashSeen across every worker's Supervisor).
func New(cfg *config.Config, idx *corpus.Index, store *feedback.Store, bk backendLauncher, black *lists.Blacklist, dictTokens [][]byte, seed int64, seen *CrashSeen) *Supervisor {
	if seen == nil {
		seen = NewCrashSeen()
	}
	return &Supervisor{
		cfg:        cfg,
		idx:        idx,
		store:      store,
		backend:    bk,
		black:      black,
		dict:       dictTokens,
		rnd:        rand.New(rand.NewSource(seed)),
		seen:       seen,
		reportPath: filepath.Join(cfg.Workspace, report.DefaultFileName),
	}
}

// LoadDictionary is a convenience wrapper so callers can build a
// Supervisor directly from the config's wordlist path.
func LoadDictionary(cfg *config.Config) ([][]byte, error) {
	if cfg.Wordlist == "" {
		return nil, nil
	}
	return dict.Load(cfg.Wordlist)
}

// mode derives the active preparation Mode from the configuration.
func (s *Supervisor) mode() Mode {
	switch {
	case s.cfg.MutateCmd != "":
		return External
	case s.cfg.DynfileInstr || s.cfg.DynfileBranch || s.cfg.DynfileBlock || s.cfg.DynfileEdge || s.cfg.DynfileCustom:
		return Dynamic
	default:
		return Plain
	}
}

// Run executes one iteration of the loop described in spec.md §4.5.
// Per-iteration failures are logged and returned as nil so the caller's
// loop continues; only fatal conditions return a non-nil error.
func (s *Supervisor) Run(ctx context.Context) error {
	s.Stats.Iterations++

	seedIdx := s.idx.PickRandom(s.rnd)
	origFileName := fio.Basename(s.idx.At(seedIdx))

	candidatePath := stage.FreshCandidatePath(s.rnd, s.cfg.Workspace, s.cfg.Extension)

	candidate, err := s.prepare(ctx, seedIdx, candidatePath)
	if err != nil {
		logger.Warningf(ctx, "supervisor: iteration failed during preparation: %s", err)
		return nil
	}
	defer os.Remove(candidatePath)

	argv := stage.SubstitutePlaceholder(s.cfg.TargetArgv, s.cfg.Placeholder, candidatePath)

	bcfg := backend.Config{
		Argv:          argv,
		Env:           s.cfg.Env,
		Timeout:       s.cfg.Timeout,
		RlimitAS:      s.cfg.RlimitAS,
		NullifyStdio:  s.cfg.NullifyStdio,
		StdinInput:    s.cfg.StdinInput,
		StdinBytes:    candidate,
		CandidatePath: candidatePath,
	}

	res, err := s.backend.Launch(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("supervisor: backend launch failed: %w", err)
	}

	switch res.Classification {
	case backend.Timeout:
		s.Stats.TimeoutedCnt++
	case backend.Crash:
		s.handleCrash(ctx, res, origFileName, candidatePath, candidate)
	}

	if s.mode() == Dynamic {
		if _, err := s.store.TryUpdate(ctx, candidate, res.Counters); err != nil {
			logger.Warningf(ctx, "supervisor: feedback store publish failed: %s", err)
		}
		if s.store.NeedsReset() {
			fresh, err := s.readSeed(seedIdx)
			if err == nil {
				s.store.Reset(ctx, fresh, s.cfg.EnabledDimensions())
			}
		}
	}

	return nil
}

func (s *Supervisor) handleCrash(ctx context.Context, res backend.Result, origFileName, candidatePath string, candidate []byte) {
	s.Stats.CrashesCnt++

	hash := res.Crash.StackHash
	if s.black.Contains(hash) {
		logger.Debugf(ctx, "supervisor: crash with blacklisted stack hash %016x suppressed", hash)
		return
	}

	firstSeen := s.seen.MarkSeen(hash)
	if firstSeen {
		s.Stats.UniqueCrashesCnt++
	}

	verified := false
	if s.cfg.UseVerifier {
		verified = s.verify(ctx, candidatePath, hash)
		if verified {
			s.Stats.VerifiedCrashesCnt++
		}
	}

	if s.mode() == Dynamic {
		s.store.ClampOnCrash()
	}

	// save_all persists every crash case; otherwise only the first
	// occurrence of each stack hash is kept on disk, matching spec.md
	// §6's "persist every case, not only unique crashes".
	if firstSeen || s.cfg.SaveAll {
		s.saveCrashInput(ctx, candidatePath, res.Crash.Signal, hash)
	}

	entry := report.Entry{
		OrigFileName:  origFileName,
		CandidatePath: candidatePath,
		CandidateSize: len(candidate),
		StackHash:     hash,
		Crash:         res.Crash,
		Verified:      verified,
	}
	if err := report.Append(s.reportPath, entry, time.Now()); err != nil {
		logger.Warningf(ctx, "supervisor: couldn't append crash report: %s", err)
	}
}

// saveCrashInput persists the crashing candidate under a stack-hash-named
// file in the workspace, via fio.CopyOrLink (cheap hardlink when possible,
// falling back to a copy across filesystems). A destination that already
// exists (another worker just saved the same hash) is not an error.
func (s *Supervisor) saveCrashInput(ctx context.Context, candidatePath, signal string, hash uint64) {
	if signal == "" {
		signal = "UNKNOWN"
	}
	name := fmt.Sprintf("%s.%016x.%s", signal, hash, s.cfg.Extension)
	if s.cfg.SaveAll {
		// Every case gets its own file: the candidate's name is unique.
		name = fmt.Sprintf("%s.%016x.%s", signal, hash, filepath.Base(candidatePath))
	}
	dst := filepath.Join(s.cfg.Workspace, name)
	switch fio.CopyOrLink(candidatePath, dst) {
	case fio.Failed:
		logger.Warningf(ctx, "supervisor: couldn't save crash input to %q", dst)
	default:
		logger.Debugf(ctx, "supervisor: crash input saved to %q", dst)
	}
}

// verify re-runs the same candidate VerifierIterations times and
// reports whether every re-run crashed with the same stack hash.
func (s *Supervisor) verify(ctx context.Context, candidatePath string, wantHash uint64) bool {
	argv := stage.SubstitutePlaceholder(s.cfg.TargetArgv, s.cfg.Placeholder, candidatePath)
	candidate, err := fio.ReadToBufMax(candidatePath, s.cfg.MaxFileSize)
	if err != nil {
		return false
	}

	for i := 0; i < VerifierIterations; i++ {
		bcfg := backend.Config{
			Argv:         argv,
			Env:          s.cfg.Env,
			Timeout:      s.cfg.Timeout,
			RlimitAS:     s.cfg.RlimitAS,
			NullifyStdio: s.cfg.NullifyStdio,
			StdinInput:   s.cfg.StdinInput,
			StdinBytes:   candidate,
		}
		res, err := s.backend.Launch(ctx, bcfg)
		if err != nil || res.Classification != backend.Crash || res.Crash.StackHash != wantHash {
			return false
		}
	}
	return true
}

// prepare chooses among the plain/dynamic/external preparation
// policies and returns the materialized candidate bytes.
func (s *Supervisor) prepare(ctx context.Context, seedIdx int, candidatePath string) ([]byte, error) {
	switch s.mode() {
	case Dynamic:
		return s.prepareDynamic(ctx, seedIdx, candidatePath)
	case External:
		return s.prepareExternal(ctx, seedIdx, candidatePath)
	default:
		return s.preparePlain(seedIdx, candidatePath)
	}
}

func (s *Supervisor) preparePlain(seedIdx int, candidatePath string) ([]byte, error) {
	buf, err := s.readSeed(seedIdx)
	if err != nil {
		return nil, err
	}
	buf = s.mutate(buf)
	if err := stage.Materialize(candidatePath, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Supervisor) prepareDynamic(ctx context.Context, seedIdx int, candidatePath string) ([]byte, error) {
	if err := s.store.SeedInitial(ctx, func(*rand.Rand) ([]byte, error) {
		return s.readSeed(seedIdx)
	}, s.rnd, s.cfg.EnabledDimensions()); err != nil {
		return nil, err
	}

	snap := s.store.Snapshot()
	buf := append([]byte(nil), snap.Bytes...)
	buf = s.mutate(buf)
	if err := stage.Materialize(candidatePath, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Supervisor) prepareExternal(ctx context.Context, seedIdx int, candidatePath string) ([]byte, error) {
	buf, err := s.readSeed(seedIdx)
	if err != nil {
		buf = nil
	}
	if err := stage.Materialize(candidatePath, buf); err != nil {
		return nil, err
	}

	// mutate_cmd may itself carry arguments ("python3 mutator.py
	// --seed=1"); shlex-split it so quoting is honored the way a shell
	// would, rather than treating the whole string as one executable
	// name.
	argv, err := shlex.Split(s.cfg.MutateCmd)
	if err != nil || len(argv) == 0 {
		return nil, fmt.Errorf("external mutator: invalid mutate_cmd %q: %w", s.cfg.MutateCmd, err)
	}

	// A fresh exec.Cmd is needed per attempt since exec.Cmd can't be
	// re-run once started; retry papers over transient spawn failures
	// (EINTR-equivalent, or a momentarily unavailable fork) rather than
	// failing the whole iteration on the first hiccup.
	backoff := retry.WithMaxRetries(&retry.ZeroBackoff{}, externalMutatorRetries)
	runErr := retry.Retry(ctx, backoff, func() error {
		cmd := exec.Command(argv[0], append(argv[1:], candidatePath)...)
		return cmd.Run()
	})
	if runErr != nil {
		return nil, fmt.Errorf("external mutator failed: %w", runErr)
	}

	return fio.ReadToBufMax(candidatePath, s.cfg.MaxFileSize)
}

// mutate applies resize+mangle unless flip_rate is zero, in which case
// spec.md's dry-run property requires both to be skipped entirely so
// candidate bytes equal seed bytes across all iterations.
func (s *Supervisor) mutate(buf []byte) []byte {
	if s.cfg.FlipRate <= 0 {
		return buf
	}
	buf = mutate.Resize(s.rnd, buf, int(s.cfg.MaxFileSize))
	mutate.Mangle(s.rnd, buf, s.cfg.FlipRate, s.dict)
	return buf
}

func (s *Supervisor) readSeed(seedIdx int) ([]byte, error) {
	path := s.idx.At(seedIdx)
	if path == corpus.DynamicFilePlaceholder || path == corpus.CreatedFilePlaceholder {
		return []byte{}, nil
	}
	return fio.ReadToBufMax(path, s.cfg.MaxFileSize)
}
