package workflows

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// ReportImplementPrompter builds a prompt pack from the most recent
// verification failures, one section per failed task ordered by
// priority, for hand-off to implement_tasks or a human.
func ReportImplementPrompter(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "report_implement_prompter",
		Category: workflow.CategoryVerify,
		Version:  "1.0.0",
		Summary:  "Build an implementation prompt pack from failed verification verdicts",
		Effects:  []workflow.Effect{workflow.EffectWriteRuntime},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
			"run_id":   {Required: false, Type: "string"},
		},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}
			runID := argStringOr(args, "run_id", specID+"-prompt")

			tasksContent, err := deps.Bundle.ReadFile(bundleFilePath(deps, category, specID, "tasks.md"))
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

			var b strings.Builder
			b.WriteString("# Implementation prompts\n\n")
			wrote := 0
			verdicts := append([]evidence.Verdict(nil), report.Verdicts...)
			sort.SliceStable(verdicts, func(i, j int) bool { return verdicts[i].Priority < verdicts[j].Priority })
			for _, v := range verdicts {
				if v.Classification == evidence.ClassVerified {
					continue
				}
				fmt.Fprintf(&b, "## %s (%s, priority %d)\n\n", v.Title, v.Classification, v.Priority)
				for _, r := range v.Reasons {
					fmt.Fprintf(&b, "- %s\n", r)
				}
				for _, s := range v.Suggestions {
					fmt.Fprintf(&b, "- suggested path: %s (similarity %.2f)\n", s.Path, s.Similarity)
				}
				b.WriteString("\n")
				wrote++
			}
			if wrote == 0 {
				b.WriteString("No outstanding failures; nothing to implement.\n")
			}

			path := deps.Bundle.PromptPackPath(runID) + "/implement.md"
			if err := deps.Bundle.WriteFile(specID, path, []byte(b.String()), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %s (%d failing tasks)", path, wrote), nil
		},
	}
}
