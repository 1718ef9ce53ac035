package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
)

// runExportCmd reads an entry-array JSON file, re-canonicalizes it and
// prints the canonical bytes plus both digests.
func runExportCmd(args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	in := fs.String("in", "", "audit log entries (JSON array)")
	out := fs.String("out", "", "write canonical bytes here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" {
		logger.Error("export requires -in")
		return 2
	}

	log, err := readLog(*in)
	if err != nil {
		logger.Error("read log", "err", err)
		return 1
	}
	canon, err := log.CanonicalBytes()
	if err != nil {
		logger.Error("canonicalize", "err", err)
		return 1
	}
	d256, err := log.Digest256()
	if err != nil {
		logger.Error("digest", "err", err)
		return 1
	}
	d512, err := log.Digest512()
	if err != nil {
		logger.Error("digest", "err", err)
		return 1
	}

	if *out != "" {
		if err := os.WriteFile(*out, canon, 0o644); err != nil {
			logger.Error("write canonical export", "err", err)
			return 1
		}
	} else {
		stdout.Write(canon)
		fmt.Fprintln(stdout)
	}
	fmt.Fprintf(stdout, "sha256: %s\nsha3-512: %s\n", d256, d512)
	return 0
}

func readLog(path string) (*audit.Log, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []audit.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return audit.Restore(entries)
}
