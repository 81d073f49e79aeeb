package main

import (
	"os"
	"path/filepath"
	"testing"

	"nepse-observer/src/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(os.Stderr)
	root.SetErr(os.Stderr)
	return root.Execute()
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"schedule"},
		{"fetch", "prices"}, {"fetch", "index"}, {"fetch", "company"}, {"fetch", "history"},
		{"archive", "prices"}, {"archive", "index"},
		{"cleanup"},
		{"jobs", "list"}, {"jobs", "run"}, {"jobs", "health"},
		{"config", "init"}, {"config", "show"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestCleanupRejectsUnknownType(t *testing.T) {
	err := execute("cleanup", "--type", "warrant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown --type "warrant"`)
}

func TestArchiveHasNoDryRun(t *testing.T) {
	err := execute("archive", "prices", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no dry run")
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nepse.yaml")

	require.NoError(t, execute("config", "init", "--config", path))
	conf, err := config.NewConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8090, conf.Port)
	assert.Equal(t, int64(58), conf.Extract.MainIndexID)
	assert.Equal(t, "30 16 * * 0-4", conf.Jobs.CompanyCron)

	err = execute("config", "init", "--config", path)
	require.Error(t, err)
	require.NoError(t, execute("config", "init", "--config", path, "--force"))
}
