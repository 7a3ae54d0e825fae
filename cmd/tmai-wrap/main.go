// tmai-wrap runs an agent under a pseudo-terminal and publishes its
// inferred status to the shared state file the monitor polls:
//
//	tmai-wrap [-id <state-id>] -- claude --resume
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tmai/tmai/internal/ptywrap"
)

var idFlag = flag.String("id", "", "state file id (default: tmux pane id, else a UUID)")

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: tmai-wrap [-id <state-id>] -- <command> [args...]")
		os.Exit(2)
	}

	code, err := ptywrap.Run(ptywrap.Config{
		Command: args[0],
		Args:    args[1:],
		ID:      *idFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tmai-wrap: %v\n", err)
	}
	os.Exit(code)
}
