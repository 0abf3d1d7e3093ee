package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/bargom/hivemind/cmd/hivemind/testing"
)

func TestVersionCommand(t *testing.T) {
	t.Run("prints version information", func(t *testing.T) {
		output, err := clitest.ExecuteCommand(NewRootCmd(), "version")

		require.NoError(t, err)
		assert.Contains(t, output, "hivemind v"+Version)
		assert.Contains(t, output, "Build Date")
		assert.Contains(t, output, "Git Commit")
	})

	t.Run("JSON output format", func(t *testing.T) {
		output, err := clitest.ExecuteCommand(NewRootCmd(), "version", "--output", "json")
		require.NoError(t, err)

		var info VersionInfo
		require.NoError(t, json.Unmarshal([]byte(output), &info))
		assert.Equal(t, Version, info.Version)
	})

	t.Run("does not accept arguments", func(t *testing.T) {
		_, err := clitest.ExecuteCommand(NewRootCmd(), "version", "extra")
		assert.Error(t, err)
	})
}
