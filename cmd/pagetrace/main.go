// Package main provides the pagetrace command: run action scripts against a
// browser, replay saved traces and hunt for flaky steps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

// errFailed marks a command that ran to completion but reported failures.
var errFailed = errors.New("one or more steps failed")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

var commands = []command{
	{"run", "execute an action script and save its trace", runCommand},
	{"replay", "replay a saved trace and report mismatches", replayCommand},
	{"flakes", "replay a trace several times and rank unstable actions", flakesCommand},
	{"sessions", "list saved sessions", sessionsCommand},
	{"config", "show or change persistent settings", configCommand},
	{"version", "print the version", func(context.Context, []string) error {
		fmt.Printf("pagetrace v%s\n", version)
		return nil
	}},
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		err := c.run(ctx, args)
		switch {
		case err == nil:
			return
		case errors.Is(err, errFailed):
			cancel()
			os.Exit(1)
		case errors.Is(err, flag.ErrHelp):
			return
		default:
			fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
			cancel()
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, "pagetrace - deterministic browser automation with replay\n\n")
	fmt.Fprintf(os.Stderr, "Usage: pagetrace <command> [options] [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  pagetrace run -trace login.trace.json login.yaml\n")
	fmt.Fprintf(os.Stderr, "  pagetrace replay -mode relaxed login.trace.json\n")
	fmt.Fprintf(os.Stderr, "  pagetrace flakes -runs 5 login.trace.json\n")
}
