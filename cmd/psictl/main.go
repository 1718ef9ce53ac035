// psictl is the operator CLI for the ledger core: the determinism
// self-test gate, canonical audit export and digest verification.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entrypoint.
func Run(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))
	if len(args) < 2 {
		usage(stderr)
		return 2
	}
	switch args[1] {
	case "selftest":
		return runSelftestCmd(args[2:], stdout, logger)
	case "export":
		return runExportCmd(args[2:], stdout, logger)
	case "verify":
		return runVerifyCmd(args[2:], stdout, logger)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	}
	fmt.Fprintf(stderr, "psictl: unknown command %q\n", args[1])
	usage(stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: psictl <command> [flags]

commands:
  selftest   replay the arithmetic proof vectors (startup gate)
  export     canonicalize an audit log and print its digests
  verify     recompute a log digest and compare against an expected value
`)
}
