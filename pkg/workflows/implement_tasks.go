package workflows

import (
	"context"
	"fmt"
	"regexp"

	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// ImplementTasks drives codegen for every task whose latest verdict
// is not yet verified, one gateway completion per task, and writes the
// generated patches under .spec/reports/implement_tasks/<run-id>/.
func ImplementTasks(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "implement_tasks",
		Category: workflow.CategoryImplement,
		Version:  "1.0.0",
		Summary:  "Generate code for unverified tasks in tasks.md",
		Effects:  []workflow.Effect{workflow.EffectWriteRuntime, workflow.EffectNetwork},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
			"run_id":   {Required: false, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\bimplement\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}
			runID := argStringOr(args, "run_id", specID+"-implement")

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

			implemented := 0
			for i, v := range report.Verdicts {
				if v.Classification == evidence.ClassVerified {
					continue
				}
				task := tasks[i]
				resp, err := deps.Gate.Complete(ctx, "system:workflow", gateway.TaskCodeGeneration, gateway.PriorityQuality, gateway.CompletionRequest{
					System: "Write the code and tests needed to satisfy the following task and its evidence hooks. " +
						"Respond with a unified diff only.",
					Messages: []gateway.Message{{
						Role:    "user",
						Content: fmt.Sprintf("Task: %s\nClassification: %s\nReasons: %v\n", task.Title, v.Classification, v.Reasons),
					}},
					ExpectedOutputTok: 1000,
				})
				if err != nil {
					return nil, err
				}

				patchPath := fmt.Sprintf("%s/%s.patch", deps.Bundle.ReportPath("implement_tasks", runID), task.ID)
				if err := deps.Bundle.WriteFile(specID, patchPath, []byte(resp.Content), 0o644); err != nil {
					return nil, err
				}
				implemented++
			}

			return fmt.Sprintf("generated %d patch(es) under %s", implemented, deps.Bundle.ReportPath("implement_tasks", runID)), nil
		},
	}
}
