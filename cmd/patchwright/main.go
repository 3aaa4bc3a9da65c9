// Package main provides the entry point for the patchwright CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/patchwright/patchwright/internal/cli"
)

// Build information set via ldflags.
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	// SIGINT and SIGTERM cancel the context; in-flight runs finalize as
	// aborted without billing canceled work.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	cli.CloseLogFile()
	os.Exit(cli.ExitCodeForError(err))
}
