package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/opennotes-ai/opennotes-sub006/internal/version"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandRegistered(t *testing.T) {
	versionCmd, _, err := rootCmd.Find([]string{"version"})
	require.NoError(t, err, "version command should be registered")
	require.NotNil(t, versionCmd)
	assert.Equal(t, "version", versionCmd.Use)
}

func TestVersionCommandOutputFormat(t *testing.T) {
	tests := []struct {
		name         string
		version      string
		commit       string
		buildTime    string
		wantContains []string
	}{
		{
			name:      "complete version info",
			version:   "v1.2.3",
			commit:    "abc123def456",
			buildTime: "2025-01-01T12:00:00Z",
			wantContains: []string{
				"OpenNotes Batch CLI",
				"Version: v1.2.3",
				"Commit: abc123def456",
				"Built: 2025-01-01T12:00:00Z",
			},
		},
		{
			name: "empty build vars fall back to defaults",
			wantContains: []string{
				"OpenNotes Batch CLI",
				"Version: dev",
				"Commit: unknown",
				"Built: unknown",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version.ResetBuildVars()
			defer version.ResetBuildVars()
			version.SetBuildVars(tt.version, tt.commit, tt.buildTime)

			versionCmd := newVersionCmd()
			var buf bytes.Buffer
			versionCmd.SetOut(&buf)

			// Calling RunE directly keeps the test independent of the
			// root command's configuration lifecycle.
			require.NoError(t, versionCmd.RunE(versionCmd, nil))

			for _, expected := range tt.wantContains {
				assert.Contains(t, buf.String(), expected)
			}
		})
	}
}

func TestVersionCommandShortFlag(t *testing.T) {
	version.ResetBuildVars()
	defer version.ResetBuildVars()
	version.SetBuildVars("v1.2.3", "abc123", "2025-01-01T12:00:00Z")

	versionCmd := newVersionCmd()
	require.NoError(t, versionCmd.Flags().Set("short", "true"))

	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	assert.Equal(t, "v1.2.3", strings.TrimSpace(buf.String()),
		"--short should output only the version number")
}

func TestVersionCommandNoConfigRequired(t *testing.T) {
	version.ResetBuildVars()
	defer version.ResetBuildVars()
	version.SetBuildVars("v1.0.0", "testcommit", "2025-01-01T12:00:00Z")

	testRoot := &cobra.Command{Use: "opennotes"}
	testRoot.AddCommand(newVersionCmd())

	var buf bytes.Buffer
	testRoot.SetOut(&buf)
	testRoot.SetArgs([]string{"version"})

	require.NoError(t, testRoot.Execute(), "version command should work without configuration")
	assert.Contains(t, buf.String(), "OpenNotes Batch CLI")
	assert.Contains(t, buf.String(), "v1.0.0")
	assert.Contains(t, buf.String(), "testcommit")
}
