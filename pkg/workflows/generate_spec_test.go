package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSpecWritesSpecFile(t *testing.T) {
	deps := newTestDeps(t, "# Widget feature\n\nPurpose: ...\n")
	wf := GenerateSpec(deps)

	_, err := wf.Run(context.Background(), map[string]any{
		"category": "features",
		"spec_id":  "widget",
		"prompt":   "add a widget export button",
	})
	require.NoError(t, err)

	data, err := deps.Bundle.ReadFile(bundleFilePath(deps, "features", "widget", "spec.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Widget feature")
}

func TestGenerateSpecRejectsMissingArgument(t *testing.T) {
	deps := newTestDeps(t, "anything")
	wf := GenerateSpec(deps)

	_, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	assert.Error(t, err)
}
