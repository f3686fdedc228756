package workflows

import (
	"context"
	"fmt"
	"regexp"

	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// GeneratePlan drafts plan.md from an existing spec.md.
func GeneratePlan(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "generate_plan",
		Category: workflow.CategoryPlan,
		Version:  "1.0.0",
		Summary:  "Draft plan.md from an existing spec.md",
		Effects:  []workflow.Effect{workflow.EffectWriteGoverned, workflow.EffectNetwork},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\b(draft|write|generate)\s+(a\s+)?plan\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}

			specPath := bundleFilePath(deps, category, specID, "spec.md")
			specContent, err := deps.Bundle.ReadFile(specPath)
			if err != nil {
				return nil, err
			}

			resp, err := deps.Gate.Complete(ctx, "system:workflow", gateway.TaskReasoning, gateway.PriorityQuality, gateway.CompletionRequest{
				System: "Produce an implementation plan in Markdown covering architecture, components, and sequencing for the given specification.",
				Messages:          []gateway.Message{{Role: "user", Content: string(specContent)}},
				ExpectedOutputTok: 800,
			})
			if err != nil {
				return nil, err
			}

			planPath := bundleFilePath(deps, category, specID, "plan.md")
			if err := deps.Bundle.WriteFile(specID, planPath, []byte(resp.Content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %s", planPath), nil
		},
	}
}
