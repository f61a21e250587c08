package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "chronicle", cmd.Use)
	assert.Contains(t, cmd.Long, "multi-path")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"import", "dump", "resolve", "taxonomy", "diff"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "dump", "--db", t.TempDir() + "/x.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRequiredFlags(t *testing.T) {
	tests := []struct {
		command string
		flag    string
	}{
		{"import", "db"},
		{"dump", "db"},
		{"resolve", "db"},
		{"taxonomy", "db"},
		{"diff", "out"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cmd := NewRootCommand()
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			flag := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, flag)
			assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
		})
	}
}

func TestDefaultNames(t *testing.T) {
	cmd := NewRootCommand()

	resolveCmd, _, err := cmd.Find([]string{"resolve"})
	require.NoError(t, err)
	assert.Equal(t, "master", resolveCmd.Flags().Lookup("coordinate").DefValue)
	assert.Equal(t, "c", resolveCmd.Flags().Lookup("coordinate").Shorthand)

	taxonomyCmd, _, err := cmd.Find([]string{"taxonomy"})
	require.NoError(t, err)
	assert.Equal(t, "master", taxonomyCmd.Flags().Lookup("taxonomy").DefValue)

	diffCmd, _, err := cmd.Find([]string{"diff"})
	require.NoError(t, err)
	assert.Equal(t, "author/user", diffCmd.Flags().Lookup("author").DefValue)
	assert.Equal(t, "diff.ibdf", diffCmd.Flags().Lookup("name").DefValue)
}
