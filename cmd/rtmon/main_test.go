package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRootSubcommands(t *testing.T) {
	root := buildRoot(&bytes.Buffer{})
	want := []string{"serve", "set", "cancel", "list", "status", "tick"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestSetRequiresFlags(t *testing.T) {
	root := buildRoot(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"set", "--pid", "1"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTickDefaults(t *testing.T) {
	root := buildRoot(&bytes.Buffer{})
	cmd, _, err := root.Find([]string{"tick"})
	require.NoError(t, err)
	assert.Equal(t, "100", cmd.Flags().Lookup("t").DefValue)
	assert.Equal(t, "1", cmd.Flags().Lookup("c").DefValue)
	assert.Equal(t, "10", cmd.Flags().Lookup("count").DefValue)
}
