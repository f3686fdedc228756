package workflows

import (
	"context"
	"fmt"
	"regexp"

	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// GenerateDocs drafts a short user-facing changelog entry for a spec
// bundle from its spec.md alone; verification reports are not read. It
// does not attempt full documentation-site generation.
func GenerateDocs(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "generate_docs",
		Category: workflow.CategoryDocs,
		Version:  "1.0.0",
		Summary:  "Draft a changelog entry summarizing a completed spec bundle",
		Effects:  []workflow.Effect{workflow.EffectWriteRuntime, workflow.EffectNetwork},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
			"run_id":   {Required: false, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\b(generate|write)\s+docs\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			category, err := argString(args, "category")
			if err != nil {
				return nil, err
			}
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}
			runID := argStringOr(args, "run_id", specID+"-docs")

			specContent, err := deps.Bundle.ReadFile(bundleFilePath(deps, category, specID, "spec.md"))
			if err != nil {
				return nil, err
			}

			resp, err := deps.Gate.Complete(ctx, "system:workflow", gateway.TaskSummarization, gateway.PriorityCost, gateway.CompletionRequest{
				System:            "Write a one-paragraph changelog entry in Markdown describing this feature for end users.",
				Messages:          []gateway.Message{{Role: "user", Content: string(specContent)}},
				ExpectedOutputTok: 150,
			})
			if err != nil {
				return nil, err
			}

			path := deps.Bundle.ReportPath("generate_docs", runID) + "/changelog.md"
			if err := deps.Bundle.WriteFile(specID, path, []byte(resp.Content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %s", path), nil
		},
	}
}
