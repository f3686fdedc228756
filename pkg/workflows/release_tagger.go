package workflows

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/smartspec/smartspec/pkg/workflow"
)

// ReleaseTagger records a release marker for a spec bundle once its
// docs have been generated, the final step of the pipeline. It writes
// a marker file rather than touching version control directly.
func ReleaseTagger(deps Deps) workflow.Descriptor {
	return workflow.Descriptor{
		Name:     "release_tagger",
		Category: workflow.CategoryRelease,
		Version:  "1.0.0",
		Summary:  "Record a release marker for a spec bundle whose docs have been generated",
		Effects:  []workflow.Effect{workflow.EffectWriteRuntime},
		InputSchema: map[string]workflow.ArgSpec{
			"category": {Required: true, Type: "string"},
			"spec_id":  {Required: true, Type: "string"},
			"tag":      {Required: true, Type: "string"},
		},
		Triggers: []*regexp.Regexp{regexp.MustCompile(`(?i)\btag\s+(a\s+)?release\b`)},
		Run: func(ctx context.Context, args map[string]any) (any, error) {
			specID, err := argString(args, "spec_id")
			if err != nil {
				return nil, err
			}
			tag, err := argString(args, "tag")
			if err != nil {
				return nil, err
			}

			marker := fmt.Sprintf("tag: %s\nspec_id: %s\ntagged_at: %s\n", tag, specID, time.Now().UTC().Format(time.RFC3339))
			path := deps.Bundle.ReportPath("release_tagger", tag) + "/marker.txt"
			if err := deps.Bundle.WriteFile(specID, path, []byte(marker), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("tagged %s as %s", specID, tag), nil
		},
	}
}
