package workflows

import (
	"context"
	"fmt"
	"regexp"

	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// GenerateSpec drafts spec.md from a natural-language feature prompt,
// the first stage of the SPEC -> PLAN -> TASKS -> IMPLEMENT -> VERIFY
// -> SYNC pipeline.
func GenerateSpec(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "generate_spec",
		Category: workflow.CategorySpec,
		Version:  "1.0.0",
		Summary:  "Draft spec.md for a new or existing spec bundle from a natural-language prompt",
		Effects:  []workflow.Effect{workflow.EffectWriteGoverned, workflow.EffectNetwork},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
			"prompt":   {Required: true, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\b(draft|write|generate)\s+(a\s+)?spec\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}
			prompt, err := argString(args, "prompt")
			if err != nil {
				return nil, err
			}

			resp, err := deps.Gate.Complete(ctx, "system:workflow", gateway.TaskCodeGeneration, gateway.PriorityQuality, gateway.CompletionRequest{
				System: "Draft a concise specification document in Markdown for the described feature. " +
					"Cover purpose, scope, and acceptance criteria.",
				Messages:          []gateway.Message{{Role: "user", Content: prompt}},
				ExpectedOutputTok: 800,
			})
			if err != nil {
				return nil, err
			}

			path := bundleFilePath(deps, category, specID, "spec.md")
			if err := deps.Bundle.WriteFile(specID, path, []byte(resp.Content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %s", path), nil
		},
	}
}
