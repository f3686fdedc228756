package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementTasksGeneratesPatchForUnverifiedTask(t *testing.T) {
	deps := newTestDeps(t, "--- a/pkg/widget/widget.go\n+++ b/pkg/widget/widget.go\n")
	writeVerifyFixtures(t, deps, "widget")

	wf := ImplementTasks(deps)
	result, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	require.NoError(t, err)
	assert.Contains(t, result, "generated 1 patch")
}

func TestImplementTasksSkipsAlreadyVerifiedTasks(t *testing.T) {
	deps, root := newTestDepsWithRoot(t, "--- patch ---\n")
	writeVerifyFixtures(t, deps, "widget")
	writeExportFixtures(t, root)

	wf := ImplementTasks(deps)
	result, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	require.NoError(t, err)
	assert.Contains(t, result, "generated 0 patch")
}
