package workflows

import (
	"context"
	"fmt"
	"regexp"

	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// GenerateTasks drafts tasks.md, including evidence: hooks, from plan.md.
func GenerateTasks(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "generate_tasks",
		Category: workflow.CategoryTasks,
		Version:  "1.0.0",
		Summary:  "Draft tasks.md with evidence hooks from an existing plan.md",
		Effects:  []workflow.Effect{workflow.EffectWriteGoverned, workflow.EffectNetwork},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\b(draft|write|generate|break\s+down)\s+(the\s+)?tasks\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}

			planContent, err := deps.Bundle.ReadFile(bundleFilePath(deps, category, specID, "plan.md"))
			if err != nil {
				return nil, err
			}

			resp, err := deps.Gate.Complete(ctx, "system:workflow", gateway.TaskCodeGeneration, gateway.PriorityQuality, gateway.CompletionRequest{
				System: "Break the plan into a checklist of tasks.md entries. Each task line must be a markdown " +
					"checkbox followed by an `evidence:` line binding it to a code hook and a test hook, " +
					"e.g. `evidence: code path=\"src/x.py\" symbol=foo` and `evidence: test path=\"tests/test_x.py\" contains=\"foo\"`.",
				Messages:          []gateway.Message{{Role: "user", Content: string(planContent)}},
				ExpectedOutputTok: 1200,
			})
			if err != nil {
				return nil, err
			}

			tasksPath := bundleFilePath(deps, category, specID, "tasks.md")
			if err := deps.Bundle.WriteFile(specID, tasksPath, []byte(resp.Content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %s", tasksPath), nil
		},
	}
}
