package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTasksReadsPlanAndWritesTasks(t *testing.T) {
	deps := newTestDeps(t, "- [ ] build it\n  evidence: code path=\"src/x.go\" symbol=Build\n")
	require.NoError(t, deps.Bundle.WriteFile("widget", bundleFilePath(deps, "features", "widget", "plan.md"), []byte("plan body"), 0o644))

	wf := GenerateTasks(deps)
	_, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	require.NoError(t, err)

	data, err := deps.Bundle.ReadFile(bundleFilePath(deps, "features", "widget", "tasks.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "evidence:")
}
