package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
	"github.com/noetic-labs/psimesh/core/pkg/config"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"psictl"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeEntries(t *testing.T, l *audit.Log) string {
	t.Helper()
	raw, err := json.Marshal(l.Entries())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "entries.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

// TestRunWithoutCommand verifies the usage exit code.
func TestRunWithoutCommand(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: psictl")
}

// TestRunUnknownCommand verifies unknown commands are reported.
func TestRunUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
}

// TestRunHelp verifies help prints usage and exits zero.
func TestRunHelp(t *testing.T) {
	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "selftest")
}

// TestSelftestPasses verifies the startup gate certifies on this machine.
func TestSelftestPasses(t *testing.T) {
	t.Setenv(config.EnvConstitution, "")
	code, stdout, stderr := runCLI(t, "selftest")
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "self-test passed")
}

// TestSelftestPinRoundTrip verifies -write-pin then -pin certifies against
// the recorded digest table, and a corrupted pin is refused.
func TestSelftestPinRoundTrip(t *testing.T) {
	pinPath := filepath.Join(t.TempDir(), "selftest.pin")

	code, stdout, stderr := runCLI(t, "selftest", "-write-pin", pinPath)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "pinned")

	code, _, stderr = runCLI(t, "selftest", "-pin", pinPath)
	assert.Equal(t, 0, code, stderr)

	var pins map[string]string
	raw, err := os.ReadFile(pinPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &pins))
	pins["mul_ints"] = "0000000000000000000000000000000000000000000000000000000000000000"
	raw, err = json.Marshal(pins)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pinPath, raw, 0o644))

	code, _, stderr = runCLI(t, "selftest", "-pin", pinPath)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "determinism violation")
}

// TestExportAndVerify verifies the export/verify pair round-trips a log
// through the filesystem.
func TestExportAndVerify(t *testing.T) {
	l := audit.NewLog("cli-test")
	l.Append("add", []string{"1", "2"}, "3", nil)
	l.Append("mul", []string{"3", "4"}, "12", nil)
	path := writeEntries(t, l)

	out := filepath.Join(t.TempDir(), "canonical.json")
	code, stdout, stderr := runCLI(t, "export", "-in", path, "-out", out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "sha256: ")
	assert.Contains(t, stdout, "sha3-512: ")

	canon, err := os.ReadFile(out)
	require.NoError(t, err)
	want, err := l.CanonicalBytes()
	require.NoError(t, err)
	assert.Equal(t, want, canon)

	digest, err := l.Digest256()
	require.NoError(t, err)
	code, stdout, stderr = runCLI(t, "verify", "-in", path, "-digest", digest)
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "verified: "+digest)
}

// TestVerifyDetectsMismatch verifies a wrong expected digest fails.
func TestVerifyDetectsMismatch(t *testing.T) {
	l := audit.NewLog("cli-test")
	l.Append("add", []string{"1", "1"}, "2", nil)
	path := writeEntries(t, l)

	code, _, stderr := runCLI(t, "verify", "-in", path, "-digest", "deadbeef")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "digest mismatch")
}

// TestExportRequiresInput verifies missing flags exit with usage code.
func TestExportRequiresInput(t *testing.T) {
	code, _, _ := runCLI(t, "export")
	assert.Equal(t, 2, code)

	code, _, _ = runCLI(t, "verify", "-in", "x")
	assert.Equal(t, 2, code)
}
