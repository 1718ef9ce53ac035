package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/noetic-labs/psimesh/core/pkg/certmath"
	"github.com/noetic-labs/psimesh/core/pkg/config"
)

// runSelftestCmd is the startup gate. Any determinism violation exits
// non-zero; hosts must refuse to serve if this fails.
func runSelftestCmd(args []string, stdout io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("selftest", flag.ContinueOnError)
	pinPath := fs.String("pin", "", "digest pin file to verify against (defaults to the constitution's self_test_pin)")
	writePin := fs.String("write-pin", "", "write the computed digest table to this file and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *writePin != "" {
		digests, err := certmath.SelfTestDigests()
		if err != nil {
			logger.Error("self-test failed while pinning", "err", err)
			return 1
		}
		raw, err := json.MarshalIndent(digests, "", "  ")
		if err != nil {
			logger.Error("encode pin table", "err", err)
			return 1
		}
		if err := os.WriteFile(*writePin, append(raw, '\n'), 0o644); err != nil {
			logger.Error("write pin table", "err", err)
			return 1
		}
		fmt.Fprintf(stdout, "pinned %d vectors to %s\n", len(digests), *writePin)
		return 0
	}

	path := *pinPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Error("load constitution", "err", err)
			return 1
		}
		path = cfg.SelfTestPin
	}
	var pins map[string]string
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read pin table", "path", path, "err", err)
			return 1
		}
		if err := json.Unmarshal(raw, &pins); err != nil {
			logger.Error("parse pin table", "path", path, "err", err)
			return 1
		}
	}

	if err := certmath.SelfTest(pins); err != nil {
		logger.Error("determinism violation; refusing to start", "err", err)
		return 1
	}
	fmt.Fprintf(stdout, "self-test passed: %d vectors certified\n", len(certmath.ProofVectors()))
	return 0
}
