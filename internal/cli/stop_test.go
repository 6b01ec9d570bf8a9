package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand_Help(t *testing.T) {
	out, err := execute(t, "", "stop", "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "Stop the Toolgate HTTP server")
	assert.Contains(t, out, "timeout")
}

func TestStopServer_NotRunning(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "stale.pid")
	require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0644))

	err := stopServer(&bytes.Buffer{}, pidFile, time.Second)

	assert.ErrorContains(t, err, "not running")
	_, statErr := os.Stat(pidFile)
	assert.True(t, os.IsNotExist(statErr), "stale PID file should be removed")
}
