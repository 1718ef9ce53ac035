package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
)

// runVerifyCmd recomputes a log's digest and compares it to the expected
// value exchanged with an external anchoring service.
func runVerifyCmd(args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	in := fs.String("in", "", "audit log entries (JSON array)")
	digest := fs.String("digest", "", "expected sha256 hex digest")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" || *digest == "" {
		logger.Error("verify requires -in and -digest")
		return 2
	}

	log, err := readLog(*in)
	if err != nil {
		logger.Error("read log", "err", err)
		return 1
	}
	got, err := log.Digest256()
	if err != nil {
		logger.Error("digest", "err", err)
		return 1
	}
	if got != *digest {
		logger.Error("digest mismatch", "expected", *digest, "got", got)
		return 1
	}
	fmt.Fprintf(stdout, "verified: %s (%d entries)\n", got, log.Len())
	return 0
}
