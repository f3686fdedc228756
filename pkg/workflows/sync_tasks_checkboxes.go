package workflows

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// SyncTasksCheckboxes re-verifies tasks.md and rewrites its checkbox
// state to match the latest verdicts: a task is only checked when its
// classification is verified, regardless of what it claimed before.
func SyncTasksCheckboxes(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "sync_tasks_checkboxes",
		Category: workflow.CategorySync,
		Version:  "1.0.0",
		Summary:  "Reconcile tasks.md checkbox state against the latest verification verdicts",
		Effects:  []workflow.Effect{workflow.EffectWriteGoverned},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\bsync\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}

			tasksPath := bundleFilePath(deps, category, specID, "tasks.md")
			tasksContent, err := deps.Bundle.ReadFile(tasksPath)
			if err != nil {
				return nil, err
			}
			tasks, err := evidence.ParseTasks(string(tasksContent))
			if err != nil {
				return nil, err
			}
			report, err := deps.Verify.Verify(tasks)
			if err != nil {
				return nil, err
			}

			verifiedByLine := make(map[int]bool, len(report.Verdicts))
			for i, v := range report.Verdicts {
				// Task.Line is 1-based; lines below is indexed from 0.
				verifiedByLine[tasks[i].Line-1] = v.Classification == evidence.ClassVerified
			}

			lines := strings.Split(string(tasksContent), "\n")
			changed := 0
			for lineNo := range lines {
				verified, tracked := verifiedByLine[lineNo]
				if !tracked {
					continue
				}
				updated, didChange := setCheckbox(lines[lineNo], verified)
				if didChange {
					lines[lineNo] = updated
					changed++
				}
			}

			if changed > 0 {
				if err := deps.Bundle.WriteFile(specID, tasksPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
					return nil, err
				}
			}
			return fmt.Sprintf("reconciled %d checkbox(es)", changed), nil
		},
	}
}

var checkboxPattern = regexp.MustCompile(`^(\s*[-*]\s*\[)([ xX])(\]\s*.*)$`)

// setCheckbox rewrites a task line's checkbox to match verified,
// returning the unchanged line and false when it does not match the
// expected task-checkbox shape or is already in the desired state.
func setCheckbox(line string, verified bool) (string, bool) {
	m := checkboxPattern.FindStringSubmatch(line)
	if m == nil {
		return line, false
	}
	want := " "
	if verified {
		want = "x"
	}
	if m[2] == want || (strings.EqualFold(m[2], want) && m[2] != " ") {
		return line, false
	}
	return m[1] + want + m[3], true
}
