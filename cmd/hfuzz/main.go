// Command hfuzz is a coverage-guided, mutation-based fuzzing harness:
// it forks and execs a target program against mutated candidate inputs,
// feeding back whichever candidates improve configured coverage/perf
// counters.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&fuzzCommand{}, "")

	flag.Parse()
	ctx, cancelSignals := cancelOnTerminationSignals(context.Background())
	defer cancelSignals()
	os.Exit(int(subcommands.Execute(ctx)))
}
