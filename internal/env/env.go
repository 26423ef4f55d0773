// Package env captures details about the blockbox runtime environment.
package env

import "os"

// DefaultStorePath is the backing file used when no path is given on the
// command line.
var DefaultStorePath = findStorePath()

func findStorePath() string {
	if p := os.Getenv("BLOCKBOX_STORE"); p != "" {
		return p
	}

	// TODO: fall back to an XDG state directory instead of $HOME directly.

	return os.ExpandEnv("$HOME/.blockbox/store.img")
}
