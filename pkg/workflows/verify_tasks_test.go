package workflows

import (
	"context"
	"testing"

	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureTasksMD = `## Widget export

- [ ] build the exporter
  evidence: code path="pkg/widget/widget.go" symbol=Export
  evidence: test path="pkg/widget/widget_test.go" contains="TestExport"
`

func writeVerifyFixtures(t *testing.T, deps Deps, specID string) {
	t.Helper()
	require.NoError(t, deps.Bundle.WriteFile(specID, bundleFilePath(deps, "features", specID, "tasks.md"), []byte(fixtureTasksMD), 0o644))
}

func TestVerifyTasksReportsNotImplemented(t *testing.T) {
	deps := newTestDeps(t, "anything")
	writeVerifyFixtures(t, deps, "widget")

	wf := VerifyTasks(deps)
	result, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	require.NoError(t, err)

	report, ok := result.(evidence.Report)
	require.True(t, ok)
	assert.Equal(t, 1, report.Counts[evidence.ClassNotImplemented])

	reportPath := deps.Bundle.ReportPath("verify_tasks", "widget-verify") + "/report.md"
	data, err := deps.Bundle.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "not_implemented")
}

func TestVerifyTasksReportsVerifiedWhenEvidenceResolves(t *testing.T) {
	deps, root := newTestDepsWithRoot(t, "anything")
	writeVerifyFixtures(t, deps, "widget")
	writeExportFixtures(t, root)

	wf := VerifyTasks(deps)
	result, err := wf.Run(context.Background(), map[string]any{"category": "features", "spec_id": "widget"})
	require.NoError(t, err)

	report := result.(evidence.Report)
	assert.Equal(t, 1, report.Counts[evidence.ClassVerified])
}
