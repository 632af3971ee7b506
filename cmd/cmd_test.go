package cmd

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRegistersSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"sync", "version", "init"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestInitWritesConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initCmd.RunE(initCmd, nil))
	_, err := os.Stat(".weftsync.yml")
	require.NoError(t, err)

	// Refuses to clobber without --force.
	require.Error(t, initCmd.RunE(initCmd, nil))

	initForce = true
	t.Cleanup(func() { initForce = false })
	require.NoError(t, initCmd.RunE(initCmd, nil))
}

func TestSyncRejectsInvalidModes(t *testing.T) {
	t.Chdir(t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, syncCmd.Flags().Set("publish-mode", "carrier-pigeon"))
	t.Cleanup(func() { _ = syncCmd.Flags().Set("publish-mode", "") })

	err := runSync(syncCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish.mode")
}
