package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFlagSet builds a command carrying the jobs start flag set with the
// given flags explicitly set, so Changed() reports them the way a real
// invocation would.
func startFlagSet(t *testing.T, set map[string]string) *cobra.Command {
	t.Helper()

	cmd := &cobra.Command{Use: "start"}
	cmd.Flags().String("kind", "", "")
	cmd.Flags().String("tenant", "", "")
	cmd.Flags().Int64("limit", 0, "")
	cmd.Flags().Int64("batch-size", 0, "")
	cmd.Flags().String("spec", "", "")

	for name, value := range set {
		require.NoError(t, cmd.Flags().Set(name, value))
	}
	return cmd
}

func writeSpecFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestAssembleStartRequestFromFlags(t *testing.T) {
	tenantID := uuid.New()
	cmd := startFlagSet(t, map[string]string{
		"kind":       "content_scan",
		"tenant":     tenantID.String(),
		"limit":      "500",
		"batch-size": "50",
	})

	request, err := assembleStartRequest(cmd, "", "content_scan", tenantID.String(), 500, 50)
	require.NoError(t, err)

	assert.Equal(t, "content_scan", request.Kind)
	require.NotNil(t, request.TenantID)
	assert.Equal(t, tenantID, *request.TenantID)
	assert.Equal(t, int64(500), request.Limit)
	assert.Equal(t, int64(50), request.BatchSize)
}

func TestAssembleStartRequestFromSpecFile(t *testing.T) {
	tenantID := uuid.New()
	specPath := writeSpecFile(t, `
kind: scoring_run
tenant_id: `+tenantID.String()+`
limit: 1000
batch_size: 200
`)
	cmd := startFlagSet(t, nil)

	request, err := assembleStartRequest(cmd, specPath, "", "", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, "scoring_run", request.Kind)
	require.NotNil(t, request.TenantID)
	assert.Equal(t, tenantID, *request.TenantID)
	assert.Equal(t, int64(1000), request.Limit)
	assert.Equal(t, int64(200), request.BatchSize)
}

func TestAssembleStartRequestFlagsOverrideSpecFile(t *testing.T) {
	specPath := writeSpecFile(t, `
kind: scoring_run
limit: 1000
`)
	cmd := startFlagSet(t, map[string]string{
		"kind":  "candidate_approval",
		"limit": "25",
	})

	request, err := assembleStartRequest(cmd, specPath, "candidate_approval", "", 25, 0)
	require.NoError(t, err)

	assert.Equal(t, "candidate_approval", request.Kind)
	assert.Equal(t, int64(25), request.Limit)
	assert.Nil(t, request.TenantID)
}

func TestAssembleStartRequestRejectsMissingKind(t *testing.T) {
	cmd := startFlagSet(t, map[string]string{"limit": "10"})

	_, err := assembleStartRequest(cmd, "", "", "", 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--kind is required")
}

func TestAssembleStartRequestRejectsBadTenant(t *testing.T) {
	cmd := startFlagSet(t, map[string]string{
		"kind":   "content_scan",
		"tenant": "not-a-uuid",
	})

	_, err := assembleStartRequest(cmd, "", "content_scan", "not-a-uuid", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tenant id")
}

func TestAssembleStartRequestRejectsUnreadableSpec(t *testing.T) {
	cmd := startFlagSet(t, nil)

	_, err := assembleStartRequest(cmd, filepath.Join(t.TempDir(), "missing.yaml"), "", "", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read job spec")
}

func TestJobKindNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"candidate_approval", "content_scan", "scoring_run"}, jobKindNames())
}
