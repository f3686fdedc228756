package evidence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTasksBasic(t *testing.T) {
	doc := `## Phase 1

- [x] Implement the widget
  evidence: code path=pkg/widget/widget.go symbol=New
  evidence: test path=pkg/widget/widget_test.go

- [ ] Document the widget
  evidence: doc path=docs/widget.md contains="Widget"
`
	tasks, err := ParseTasks(doc)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.True(t, tasks[0].Claimed)
	require.Len(t, tasks[0].Hooks, 2)
	require.Equal(t, HookCode, tasks[0].Hooks[0].Kind)
	require.Equal(t, "New", tasks[0].Hooks[0].Symbol)

	require.False(t, tasks[1].Claimed)
	require.Equal(t, "Widget", tasks[1].Hooks[0].Contains)
}

func TestParseTasksRejectsTraversal(t *testing.T) {
	doc := "## Phase\n\n- [ ] Bad\n  evidence: code path=../../etc/passwd\n"
	_, err := ParseTasks(doc)
	require.Error(t, err)
}

func TestParseTasksRejectsBothContainsAndRegex(t *testing.T) {
	doc := "## Phase\n\n- [ ] Bad\n  evidence: code path=a.go contains=\"x\" regex=/y/\n"
	_, err := ParseTasks(doc)
	require.Error(t, err)
}

func TestParseTasksZeroHooks(t *testing.T) {
	doc := "## Phase\n\n- [ ] No evidence at all\n"
	tasks, err := ParseTasks(doc)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Empty(t, tasks[0].Hooks)
}
