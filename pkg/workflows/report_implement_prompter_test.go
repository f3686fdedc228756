package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportImplementPrompterWritesPromptPackForFailures(t *testing.T) {
	deps := newTestDeps(t, "anything")
	writeVerifyFixtures(t, deps, "widget")

	wf := ReportImplementPrompter(deps)
	_, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	require.NoError(t, err)

	data, err := deps.Bundle.ReadFile(deps.Bundle.PromptPackPath("widget-prompt") + "/implement.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "build the exporter")
}

func TestReportImplementPrompterReportsNothingWhenAllVerified(t *testing.T) {
	deps, root := newTestDepsWithRoot(t, "anything")
	writeVerifyFixtures(t, deps, "widget")
	writeExportFixtures(t, root)

	wf := ReportImplementPrompter(deps)
	_, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	require.NoError(t, err)

	data, err := deps.Bundle.ReadFile(deps.Bundle.PromptPackPath("widget-prompt") + "/implement.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "nothing to implement")
}
