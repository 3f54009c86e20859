// Package config defines the harness's configuration surface: the
// option table of spec.md §6, parsed via pflag (bridged onto the
// stdlib flag.FlagSet subcommands.Command requires) and optionally
// overlaid from a YAML file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/Bluebear171/honggfuzz/internal/command"
	"github.com/Bluebear171/honggfuzz/internal/stage"
)

// Config is the full set of options from spec.md §6.
type Config struct {
	Input      string `yaml:"input"`
	StdinInput bool   `yaml:"stdin_input"`

	NullifyStdio bool `yaml:"nullify_stdio"`
	SaveAll      bool `yaml:"save_all"`
	Watch        bool `yaml:"watch"`

	Extension string `yaml:"extension"`
	Workspace string `yaml:"workspace"`

	FlipRate float64 `yaml:"flip_rate"`
	Wordlist string  `yaml:"wordlist"`
	Blacklist string `yaml:"blacklist"`

	Timeout  time.Duration `yaml:"timeout"`
	Threads  int           `yaml:"threads"`
	Iterations uint64      `yaml:"iterations"`

	RlimitAS    uint64 `yaml:"rlimit_as"`
	MaxFileSize int64  `yaml:"max_file_size"`

	Env []string `yaml:"env"`

	MutateCmd string `yaml:"mutate_cmd"`

	DynfileInstr  bool `yaml:"dynfile_instr"`
	DynfileBranch bool `yaml:"dynfile_branch"`
	DynfileBlock  bool `yaml:"dynfile_block"`
	DynfileEdge   bool `yaml:"dynfile_edge"`
	DynfileCustom bool `yaml:"dynfile_custom"`

	// MaxDynFileIter bounds iter_since_reset in dynamic mode: once that
	// many consecutive updates have failed to improve on the current
	// best, the feedback store re-seeds from the corpus. 0 disables the
	// budget-expiry re-seed (only crash-triggered clamping still applies).
	MaxDynFileIter uint64 `yaml:"max_dyn_file_iter"`

	UseVerifier bool `yaml:"use_verifier"`

	Placeholder string `yaml:"placeholder"`

	PID     int    `yaml:"pid"`
	PIDFile string `yaml:"pid_file"`

	ConfigFile string `yaml:"-"`

	// TargetArgv is everything after "--" on the command line.
	TargetArgv []string `yaml:"-"`
}

// Default returns a Config populated with spec.md's stated defaults.
func Default() *Config {
	return &Config{
		Extension:      "fuzz",
		Workspace:      ".",
		MaxFileSize:    1 << 20,
		Timeout:        10 * time.Second,
		Threads:        1,
		Placeholder:    stage.PlaceholderDefault,
		MaxDynFileIter: 0x2000,
	}
}

// SetFlags registers every option in spec.md §6 on a pflag.FlagSet, then
// bridges each flag onto f so this Config can back a
// subcommands.Command (whose SetFlags signature requires the stdlib
// flag.FlagSet). pflag.Flag.Value already satisfies flag.Value, since
// pflag.Value is a superset (it adds Type()).
func (c *Config) SetFlags(f *flag.FlagSet) {
	pf := pflag.NewFlagSet("hfuzz", pflag.ContinueOnError)

	pf.StringVar(&c.Input, "input", c.Input, "seed file or directory")
	pf.BoolVar(&c.StdinInput, "stdin_input", c.StdinInput, "deliver candidate via stdin instead of via file argument")
	pf.BoolVar(&c.NullifyStdio, "nullify_stdio", c.NullifyStdio, "redirect child stdin/stdout/stderr to /dev/null")
	pf.BoolVar(&c.SaveAll, "save_all", c.SaveAll, "persist every crash case, not only unique ones")
	pf.BoolVar(&c.Watch, "watch", c.Watch, "watch the input directory for newly added seeds while running")
	pf.StringVar(&c.Extension, "extension", c.Extension, "candidate filename extension")
	pf.StringVar(&c.Workspace, "workspace", c.Workspace, "directory for outputs")
	pf.Float64Var(&c.FlipRate, "flip_rate", c.FlipRate, "mutation intensity in [0,1]")
	pf.StringVar(&c.Wordlist, "wordlist", c.Wordlist, "NUL-delimited dictionary tokens for mutator")
	pf.StringVar(&c.Blacklist, "blacklist", c.Blacklist, "sorted ascending hex stack hashes, one per line")
	pf.DurationVar(&c.Timeout, "timeout", c.Timeout, "per-child wall clock limit")
	pf.IntVar(&c.Threads, "threads", c.Threads, "worker count")
	pf.Uint64Var(&c.Iterations, "iterations", c.Iterations, "0 = unlimited")
	pf.Uint64Var(&c.RlimitAS, "rlimit_as", c.RlimitAS, "per-child address-space cap (MiB); 0 = none")
	pf.Int64Var(&c.MaxFileSize, "max_file_size", c.MaxFileSize, "upper bound on candidate size, in bytes")
	pf.StringVar(&c.MutateCmd, "mutate_cmd", c.MutateCmd, "external mutator; replaces internal mutation")
	pf.BoolVar(&c.DynfileInstr, "dynfile_instr", c.DynfileInstr, "enable the instruction-count feedback dimension")
	pf.BoolVar(&c.DynfileBranch, "dynfile_branch", c.DynfileBranch, "enable the branch-count feedback dimension")
	pf.BoolVar(&c.DynfileBlock, "dynfile_block", c.DynfileBlock, "enable the block-count feedback dimension")
	pf.BoolVar(&c.DynfileEdge, "dynfile_edge", c.DynfileEdge, "enable the edge-count feedback dimension")
	pf.BoolVar(&c.DynfileCustom, "dynfile_custom", c.DynfileCustom, "enable the custom feedback dimension")
	pf.Uint64Var(&c.MaxDynFileIter, "max_dyn_file_iter", c.MaxDynFileIter, "iter_since_reset budget before the feedback store re-seeds; 0 disables")
	pf.BoolVar(&c.UseVerifier, "use_verifier", c.UseVerifier, "re-run crashing candidates to confirm the stack hash")
	pf.StringVar(&c.Placeholder, "placeholder", c.Placeholder, "file-placeholder token substituted in target argv")
	pf.IntVar(&c.PID, "pid", c.PID, "pid of a pre-existing process; forces threads=1 (the target is still launched each iteration, no attach is performed)")
	pf.StringVar(&c.PIDFile, "pid_file", c.PIDFile, "file naming a pre-existing process's pid; forces threads=1 (the file is not read, no attach is performed)")
	pf.StringVar(&c.ConfigFile, "config", c.ConfigFile, "optional YAML file of these same options")

	env := (*command.StringsFlag)(&c.Env)
	pf.Var(env, "env", "extra K=V env for the child; may repeat")

	pf.VisitAll(func(pflg *pflag.Flag) {
		f.Var(pflg.Value, pflg.Name, pflg.Usage)
	})
}

// LoadYAML overlays values from a YAML file at path onto c. Every field
// present in the file overwrites c's current value, including one
// already set from a command-line flag; cmd/hfuzz calls it after flag
// parsing, so values in the file win over flags.
func (c *Config) LoadYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: couldn't read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: couldn't parse %q: %w", path, err)
	}
	return nil
}

// Validate checks the configuration errors spec.md §7 kind 1 calls out:
// invalid flags, missing placeholder, bad ranges. It must be called
// before the pool starts. Every violation is collected via
// go.uber.org/multierr rather than returning on the first one, so a
// user fixing their flags sees the whole list in one run instead of
// discovering problems one at a time.
func (c *Config) Validate() error {
	var err error

	if c.FlipRate < 0 || c.FlipRate > 1 {
		err = multierr.Append(err, fmt.Errorf("config: flip_rate must be in [0,1], got %v", c.FlipRate))
	}
	if c.Threads < 1 {
		err = multierr.Append(err, fmt.Errorf("config: threads must be > 0, got %d", c.Threads))
	}
	if c.MaxFileSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("config: max_file_size must be > 0, got %d", c.MaxFileSize))
	}
	if strings.Contains(c.Extension, "/") {
		err = multierr.Append(err, fmt.Errorf("config: extension must not contain '/', got %q", c.Extension))
	}
	if c.Workspace != "." {
		if st, statErr := os.Stat(c.Workspace); statErr != nil || !st.IsDir() {
			err = multierr.Append(err, fmt.Errorf("config: workspace %q must exist and be a directory", c.Workspace))
		}
	}
	if c.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("config: timeout must be > 0"))
	}

	if c.PID > 0 || c.PIDFile != "" {
		c.Threads = 1
	}

	hasPlaceholder := stage.ContainsPlaceholder(c.TargetArgv, c.Placeholder)
	if !c.StdinInput && !hasPlaceholder {
		err = multierr.Append(err, fmt.Errorf("config: target argv must contain the placeholder %q, or stdin_input must be set", c.Placeholder))
	}
	if c.StdinInput && hasPlaceholder {
		err = multierr.Append(err, fmt.Errorf("config: stdin_input and an argv placeholder are mutually exclusive delivery modes"))
	}

	if len(c.TargetArgv) == 0 {
		err = multierr.Append(err, fmt.Errorf("config: no target command given (everything after '--')"))
	}

	return err
}

// EnabledDimensions returns how many dynfile_* feedback dimensions are
// enabled, in the fixed order instr/branch/block/edge/custom. A
// supervisor with none enabled still runs with a single always-zero
// dimension via backend.NopCounterSource.
func (c *Config) EnabledDimensions() int {
	n := 0
	for _, b := range []bool{c.DynfileInstr, c.DynfileBranch, c.DynfileBlock, c.DynfileEdge, c.DynfileCustom} {
		if b {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}
