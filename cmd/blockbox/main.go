package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mklaber/blockbox/internal/lifecycle"
)

var debug = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")

func funcmain() error {
	flag.Parse()

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"mount":  {mount},
		"export": {export},
		"ls":     {ls},
		"cat":    {cat},
		"mkdir":  {mkdir},
		"write":  {write},
	}

	args := flag.Args()
	verb := "ls"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		fmt.Fprintln(os.Stderr, "blockbox [-flags] <command> [-flags] <args>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "\tls      - list a directory")
		fmt.Fprintln(os.Stderr, "\tcat     - print a file's contents")
		fmt.Fprintln(os.Stderr, "\tmkdir   - create a directory")
		fmt.Fprintln(os.Stderr, "\twrite   - write stdin to a file")
		fmt.Fprintln(os.Stderr, "\tmount   - mount the store over FUSE")
		fmt.Fprintln(os.Stderr, "\texport  - export the store as a cpio archive")
		os.Exit(2)
	}

	ctx, canc := lifecycle.InterruptibleContext()
	defer canc()
	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: blockbox <command> [options]\n")
		os.Exit(2)
	}
	if err := v.fn(ctx, args); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}

	return lifecycle.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
