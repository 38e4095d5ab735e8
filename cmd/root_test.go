package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "analyze", "verify", "status", "runs", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "posting-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s", name)
	}
}

func TestRunCommand_Flags(t *testing.T) {
	limit := runCmd.Flags().Lookup("limit")
	require.NotNil(t, limit, "run command should have --limit flag")
	assert.Equal(t, "0", limit.DefValue)

	row := runCmd.Flags().Lookup("row")
	require.NotNil(t, row, "run command should have --row flag")
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	require.NotNil(t, analyzeCmd.Flags().Lookup("url"))
	require.NotNil(t, analyzeCmd.Flags().Lookup("file"))
}

func TestVerifyCommand_Flags(t *testing.T) {
	for _, name := range []string{"name", "email", "institution", "text-file"} {
		assert.NotNil(t, verifyCmd.Flags().Lookup(name), "verify should have --%s", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats", "prune-cache"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}
