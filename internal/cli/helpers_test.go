package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// resetFlags restores package flag variables between Execute calls
func resetFlags(cmd *cobra.Command) {
	cfgFile, logLevel = "", ""
	listCategory, listRole, listJSON = "", "", false
	callArgs, callUser, callRole, callTimeout = "{}", "cli", "user", 30*time.Second
	initForce, addUserID, addUserRole = false, "", "user"
	stopTimeout = 30

	if f := cmd.Flags().Lookup("help"); f != nil {
		f.Value.Set("false")
	}
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := GetRootCmd()
	resetFlags(cmd)

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "toolgate.json")
	cfg := `{
		"logging": {"level": "error", "console": false},
		"ai": {"provider": ""},
		"metrics": {"enabled": true}
	}`
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}
