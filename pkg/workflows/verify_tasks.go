package workflows

import (
	"context"
	"regexp"

	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// VerifyTasks parses tasks.md's evidence hooks and classifies every
// task against the repository filesystem, writing a verification
// report under .spec/reports/verify_tasks/<run-id>/.
func VerifyTasks(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "verify_tasks",
		Category: workflow.CategoryVerify,
		Version:  "1.0.0",
		Summary:  "Verify tasks.md's evidence hooks against the repository filesystem",
		Effects:  []workflow.Effect{workflow.EffectWriteRuntime},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
			"run_id":   {Required: false, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\bverify\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}
			runID := argStringOr(args, "run_id", specID+"-verify")

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

			reportPath := deps.Bundle.ReportPath("verify_tasks", runID) + "/report.md"
			if err := deps.Bundle.WriteFile(specID, reportPath, []byte(evidence.Render(report)), 0o644); err != nil {
				return nil, err
			}

			return report, nil
		},
	}
}
