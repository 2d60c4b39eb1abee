package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRedirectOutput(t *testing.T) {
	savedOut, err := unix.Dup(int(os.Stdout.Fd()))
	require.NoError(t, err)
	savedErr, err := unix.Dup(int(os.Stderr.Fd()))
	require.NoError(t, err)
	defer func() {
		unix.Dup2(savedOut, int(os.Stdout.Fd()))
		unix.Dup2(savedErr, int(os.Stderr.Fd()))
		unix.Close(savedOut)
		unix.Close(savedErr)
	}()

	dir := t.TempDir()
	stdoutPath := filepath.Join(dir, "stdout")
	stderrPath := filepath.Join(dir, "stderr")
	require.NoError(t, RedirectOutput(stdoutPath, stderrPath))

	os.Stdout.WriteString("to stdout\n")
	os.Stderr.WriteString("to stderr\n")

	unix.Dup2(savedOut, int(os.Stdout.Fd()))
	unix.Dup2(savedErr, int(os.Stderr.Fd()))

	out, err := os.ReadFile(stdoutPath)
	require.NoError(t, err)
	assert.Equal(t, "to stdout\n", string(out))
	errOut, err := os.ReadFile(stderrPath)
	require.NoError(t, err)
	assert.Equal(t, "to stderr\n", string(errOut))
}

func TestRedirectOutputBadPath(t *testing.T) {
	err := RedirectOutput(filepath.Join(t.TempDir(), "no", "such", "dir", "stdout"), os.DevNull)
	assert.Error(t, err)
}
