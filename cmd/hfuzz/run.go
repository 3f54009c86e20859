package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/google/subcommands"

	"github.com/Bluebear171/honggfuzz/internal/backend"
	"github.com/Bluebear171/honggfuzz/internal/color"
	"github.com/Bluebear171/honggfuzz/internal/command"
	"github.com/Bluebear171/honggfuzz/internal/config"
	"github.com/Bluebear171/honggfuzz/internal/corpus"
	"github.com/Bluebear171/honggfuzz/internal/feedback"
	"github.com/Bluebear171/honggfuzz/internal/lists"
	"github.com/Bluebear171/honggfuzz/internal/logger"
	"github.com/Bluebear171/honggfuzz/internal/pool"
	"github.com/Bluebear171/honggfuzz/internal/supervisor"
)

func cancelOnTerminationSignals(ctx context.Context) (context.Context, func()) {
	ctx, _ = command.CancelOnSignals(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	return ctx, func() {}
}

// fuzzCommand is the single subcommand that runs the fuzzing loop,
// registered the way dev_finder's subcommands are in
// garnet/bin/dev_finder/main.go.
type fuzzCommand struct {
	cfg         *config.Config
	colorMode   string
	logLevel    string
}

func (*fuzzCommand) Name() string     { return "fuzz" }
func (*fuzzCommand) Synopsis() string { return "run the mutation-based fuzzing loop against a target" }
func (*fuzzCommand) Usage() string {
	return `fuzz [flags...] -- target [args...]

The token ___FILE___ (configurable via -placeholder) in the target's
argument vector is replaced with each candidate's path at launch time.
`
}

func (c *fuzzCommand) SetFlags(f *flag.FlagSet) {
	c.cfg = config.Default()
	c.cfg.SetFlags(f)
	f.StringVar(&c.colorMode, "color", "auto", "never|auto|always")
	f.StringVar(&c.logLevel, "log_level", "info", "debug|info|warning|error")
}

func (c *fuzzCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.cfg.TargetArgv = f.Args()

	if c.cfg.ConfigFile != "" {
		if err := c.cfg.LoadYAML(c.cfg.ConfigFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	}

	var level logger.LogLevel
	switch c.logLevel {
	case "debug":
		level = logger.DebugLevel
	case "warning":
		level = logger.WarningLevel
	case "error":
		level = logger.ErrorLevel
	default:
		level = logger.InfoLevel
	}
	var ec color.EnableColor
	if err := ec.Set(c.colorMode); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	col := color.NewColor(ec)
	log := logger.NewLogger(level, col, os.Stdout, os.Stderr)
	ctx = logger.WithLogger(ctx, log)

	if err := c.cfg.Validate(); err != nil {
		logger.Errorf(ctx, "%s", err)
		return subcommands.ExitUsageError
	}
	logger.Dumpf(ctx, "resolved config", c.cfg)

	dynamicMode := c.cfg.DynfileInstr || c.cfg.DynfileBranch || c.cfg.DynfileBlock || c.cfg.DynfileEdge || c.cfg.DynfileCustom
	externalMode := c.cfg.MutateCmd != ""

	idx, err := corpus.Load(ctx, c.cfg.Input, c.cfg.MaxFileSize, dynamicMode, externalMode)
	if err != nil {
		logger.Errorf(ctx, "%s", err)
		return subcommands.ExitFailure
	}

	var black *lists.Blacklist
	if c.cfg.Blacklist != "" {
		black, err = lists.LoadBlacklist(c.cfg.Blacklist)
		if err != nil {
			logger.Errorf(ctx, "%s", err)
			return subcommands.ExitFailure
		}
	}

	dictTokens, err := supervisor.LoadDictionary(c.cfg)
	if err != nil {
		logger.Errorf(ctx, "%s", err)
		return subcommands.ExitFailure
	}

	if c.cfg.Watch {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go func() {
			if err := idx.Watch(watchCtx, c.cfg.MaxFileSize); err != nil {
				logger.Warningf(ctx, "watch: %s", err)
			}
		}()
	}

	store := feedback.New(c.cfg.Workspace, c.cfg.MaxDynFileIter)
	bk := backend.New(backend.NopCounterSource{Dims: c.cfg.EnabledDimensions()})
	if err := bk.ArchInit(backend.Config{Timeout: c.cfg.Timeout}); err != nil {
		logger.Errorf(ctx, "%s", err)
		return subcommands.ExitFailure
	}

	seen := supervisor.NewCrashSeen()
	p := pool.New(c.cfg.Threads, c.cfg.Iterations)
	supervisors := make([]*supervisor.Supervisor, c.cfg.Threads)
	for i := range supervisors {
		supervisors[i] = supervisor.New(c.cfg, idx, store, bk, black, dictTokens, int64(i)+1, seen)
	}
	runErr := p.Run(ctx, func(ctx context.Context, workerID int) error {
		return supervisors[workerID].Run(ctx)
	})
	if runErr != nil {
		logger.Errorf(ctx, "%s", runErr)
		return subcommands.ExitFailure
	}

	logger.Infof(ctx, "done: %d iterations, %d workers finished", p.MutationsDone(), p.WorkersFinished())
	return subcommands.ExitSuccess
}
