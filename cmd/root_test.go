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

	for _, name := range []string{"check", "serve", "worker", "schedule", "migrate", "opportunities"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "geo-visibility", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCheckCommand_Flags(t *testing.T) {
	for _, name := range []string{"domain", "site", "plan", "category", "query", "custom"} {
		assert.NotNil(t, checkCmd.Flags().Lookup(name), "check should have --%s flag", name)
	}
	plan := checkCmd.Flags().Lookup("plan")
	require.NotNil(t, plan)
	assert.Equal(t, "free", plan.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestScheduleCommand_Flags(t *testing.T) {
	for _, name := range []string{"domain", "site", "plan", "category", "custom", "every"} {
		assert.NotNil(t, scheduleCmd.Flags().Lookup(name), "schedule should have --%s flag", name)
	}
	assert.Nil(t, scheduleCmd.Flags().Lookup("query"))
}

func TestOpportunitiesCommand_Flags(t *testing.T) {
	assert.NotNil(t, opportunitiesCmd.Flags().Lookup("site"))
	assert.NotNil(t, opportunitiesCmd.Flags().Lookup("addressed"))
}
