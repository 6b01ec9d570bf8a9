package cli

import (
	"path/filepath"
	"regexp"
	"testing"

	"github.com/harun/toolgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "toolgate.json")

	out, err := execute(t, "", "configure", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "last_wins", cfg.Registry.ShortNamePolicy)

	_, err = execute(t, "", "configure", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "", "configure", "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestConfigureAddUser(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "", "configure", "add-user", "--config", path, "--id", "alice", "--role", "admin")
	require.NoError(t, err)

	token := regexp.MustCompile(`Bearer token: (tg_[0-9a-f]{32})`).FindStringSubmatch(out)
	require.Len(t, token, 2, out)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Users, 1)
	assert.Equal(t, config.UserConfig{Token: token[1], ID: "alice", Role: "admin"}, cfg.Users[0])

	_, err = execute(t, "", "configure", "add-user", "--config", path, "--id", "alice")
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "", "configure", "add-user", "--config", path, "--id", "bob", "--role", "owner")
	assert.Error(t, err)
}

func TestConfigureShow_MasksTokens(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "", "configure", "add-user", "--config", path, "--id", "alice")
	require.NoError(t, err)
	token := regexp.MustCompile(`tg_[0-9a-f]{32}`).FindString(out)
	require.NotEmpty(t, token)

	out, err = execute(t, "", "configure", "show", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, `"alice"`)
	assert.NotContains(t, out, token)
}
