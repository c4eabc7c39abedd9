package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imecore/internal/config"
)

const testTable = `name = "mini"

[[entries]]
code = "ni"
text = "你"
weight = 10

[[entries]]
code = "nihao"
text = "你好"
weight = 20

[[entries]]
code = "hao"
text = "好"
weight = 8
`

// setup writes a table and a config pointing at it and returns the
// config path.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "mini.toml")
	require.NoError(t, os.WriteFile(tablePath, []byte(testTable), 0o644))

	cfg := config.DefaultConfig()
	cfg.Dictionary.Tables = []string{tablePath}
	cfg.Dictionary.CompletionLimit = 0
	cfg.UserDict.Path = filepath.Join(dir, "user.db")
	cfg.Logging.Output = "stderr"

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.SaveConfig(cfg, path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTypeCommand(t *testing.T) {
	cfgPath := setup(t)

	out, err := run(t, "--config", cfgPath, "type", "nihao", "{space}")
	require.NoError(t, err)
	assert.Contains(t, out, "> nihao\n")
	assert.Contains(t, out, "preedit: nihao‸\n")
	assert.Contains(t, out, "*1. 你好\n")
	assert.Contains(t, out, " 2. 你\n")
	assert.Contains(t, out, "commit: 你好\n")

	_, err = run(t, "--config", cfgPath, "type", "{Nope}")
	assert.Error(t, err)

	_, err = run(t, "--config", cfgPath, "type")
	assert.Error(t, err)
}

func TestTypeStats(t *testing.T) {
	cfgPath := setup(t)

	out, err := run(t, "--config", cfgPath, "type", "--no-userdict", "--stats", "nihao{space}")
	require.NoError(t, err)
	assert.Contains(t, out, "# TYPE imecore_commits_total counter\n")
	assert.Contains(t, out, "imecore_commits_total 1\n")
	assert.Contains(t, out, "imecore_keys_total 6\n")
	assert.Contains(t, out, "imecore_committed_chars_total 2\n")
}

func TestTypeLearnsAndUserDictCommands(t *testing.T) {
	cfgPath := setup(t)

	_, err := run(t, "--config", cfgPath, "type", "ni{space}")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "userdict", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "你")

	out, err = run(t, "--config", cfgPath, "lookup", "ni")
	require.NoError(t, err)
	assert.Contains(t, out, "mini")
	assert.Contains(t, out, "user")

	out, err = run(t, "--config", cfgPath, "userdict", "delete", "ni", "你")
	require.NoError(t, err)
	assert.Equal(t, "deleted ni 你\n", out)

	out, err = run(t, "--config", cfgPath, "userdict", "list", "--deleted")
	require.NoError(t, err)
	assert.Contains(t, out, "你 (deleted)")

	out, err = run(t, "--config", cfgPath, "userdict", "purge")
	require.NoError(t, err)
	assert.Equal(t, "purged 1 entries\n", out)

	_, err = run(t, "--config", cfgPath, "userdict", "learn", "hao", "号")
	require.NoError(t, err)
	out, err = run(t, "--config", cfgPath, "lookup", "hao")
	require.NoError(t, err)
	assert.Contains(t, out, "号")
}

func TestTypeWithoutUserDict(t *testing.T) {
	cfgPath := setup(t)

	_, err := run(t, "--config", cfgPath, "type", "--no-userdict", "ni{space}")
	require.NoError(t, err)

	out, err := run(t, "--config", cfgPath, "userdict", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "你")
}

func TestLookupCompletions(t *testing.T) {
	cfgPath := setup(t)

	out, err := run(t, "--config", cfgPath, "lookup", "--complete", "5", "ni")
	require.NoError(t, err)
	assert.Contains(t, out, "你好")

	out, err = run(t, "--config", cfgPath, "lookup", "ni")
	require.NoError(t, err)
	assert.NotContains(t, out, "你好")
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	out, err := run(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = run(t, "--config", path, "config", "init")
	assert.Error(t, err, "init refuses to overwrite")

	_, err = run(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	out, err = run(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, err = run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "page_size = 5")

	require.NoError(t, os.WriteFile(path, []byte("[engine]\npage_size = 0\n"), 0o644))
	_, err = run(t, "--config", path, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")

	doc := "[dictionary]\ntables = [\"/nonexistent/table.toml\"]\n\n[userdict]\nenabled = true\npath = \"\"\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	out, err = run(t, "--config", path, "config", "validate")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, out, "warning: config: dictionary.tables[0]")
	assert.Contains(t, out, "error: config: userdict.path")
}

func TestLogsCommand(t *testing.T) {
	cfgPath := setup(t)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	logDir := t.TempDir()
	cfg.Logging.FilePath = filepath.Join(logDir, "imecore.log")
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	out, err := run(t, "--config", cfgPath, "logs")
	require.NoError(t, err)
	assert.Empty(t, out)

	for _, name := range []string{
		"imecore.log",
		"imecore-imecore-ibus-20261019T101010.000.log.gz",
		"other.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(logDir, name), []byte("x"), 0o644))
	}

	out, err = run(t, "--config", cfgPath, "logs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(logDir, "imecore.log")+"\n"+
		filepath.Join(logDir, "imecore-imecore-ibus-20261019T101010.000.log.gz")+"\n", out)
}
