package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default so runs do not leak into each
// other through the package-level command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(bytes.NewReader(nil))
	rootCmd.SetArgs(args)
	err := execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "clcore version "+version)
}

func TestDevicesCommand(t *testing.T) {
	out, err := run(t, "devices", "--backend", "sim", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulated Platform")
	assert.Contains(t, out, "Device Name: Simulated GPU (GPU)")
	assert.Contains(t, out, "Max Work Items: ( 256, 256, 64 )")
}

func TestVaddCommand(t *testing.T) {
	out, err := run(t, "vadd", "--backend", "sim", "--log-level", "error", "--n", "16", "--local", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "vadd: 256 elements OK")
}

func TestVaddCommandRejectsIndivisibleShape(t *testing.T) {
	_, err := run(t, "vadd", "--backend", "sim", "--log-level", "error", "--n", "10", "--local", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CL_INVALID_WORK_GROUP_SIZE")
}

func TestFailedCommandStillExportsSpans(t *testing.T) {
	out, err := run(t, "vadd", "--backend", "sim", "--log-level", "error", "--otel", "--n", "10", "--local", "3")
	require.Error(t, err)
	assert.Contains(t, out, `"Name": "compute.Execute"`)
	assert.Contains(t, out, `"Code": "Error"`)
	assert.Empty(t, shutdownHooks)
}

func TestConfigShowAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clcore.toml")
	require.NoError(t, os.WriteFile(path, []byte("build_options = \"-cl-mad-enable\"\nfinish_timeout = \"5s\"\n"), 0o644))

	out, err := run(t, "config", "show", "--config", path, "--log-level", "warn", "--cache-dir", "/tmp/kernels")
	require.NoError(t, err)
	assert.Contains(t, out, "backend = 'sim'")
	assert.Contains(t, out, "build_options = '-cl-mad-enable'")
	assert.Contains(t, out, "finish_timeout = '5s'")
	assert.Contains(t, out, "log_level = 'warn'")
	assert.Contains(t, out, "cache_dir = '/tmp/kernels'")
}

func TestMatmulCommandPopulatesCache(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "matmul", "--backend", "sim", "--log-level", "error", "--cache-dir", dir, "--print=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Verified 32x32 product")

	out, err = run(t, "cache", "list", "--cache-dir", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "dMult")
	assert.Contains(t, out, "Total entries: 1")

	out, err = run(t, "cache", "clear", "--cache-dir", dir, "--log-level", "error", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 entr(ies), 0 failed.")
}

func TestMatmulCommandWithKernelFile(t *testing.T) {
	source, err := kernelSource("dMult")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dMult.cl")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))

	out, err := run(t, "matmul", "--backend", "sim", "--log-level", "error", "--cache-dir", "",
		"--kernel", path, "--width", "16", "--local", "4", "--print=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Verified 16x16 product")
}

func TestConfigFileSelectsBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clcore.toml")
	require.NoError(t, os.WriteFile(path, []byte("backend = \"metal\"\n"), 0o644))

	_, err := run(t, "devices", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown compute backend")
}
