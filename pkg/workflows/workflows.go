// Package workflows holds the concrete workflow descriptors the
// registry discovers at startup: one generator/transformer per pipeline
// stage (spec, plan, tasks, verify, implement, sync, docs, release)
// plus the implement-prompt reporter, generalized from the skills
// package's codemod/test/review/patch/devops/docs catalogue.
package workflows

import (
	"fmt"

	"github.com/smartspec/smartspec/pkg/bundle"
	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// Deps are the shared collaborators every workflow's Run closure needs.
type Deps struct {
	Bundle *bundle.Manager
	Gate   *gateway.Gateway
	Verify *evidence.Verifier
}

// All returns every default workflow descriptor, mirroring skills.All's
// role as the registry's default catalogue.
func All(deps Deps) []workflow.Descriptor {
	return []workflow.Descriptor{
		GenerateSpec(deps),
		GeneratePlan(deps),
		GenerateTasks(deps),
		VerifyTasks(deps),
		ReportImplementPrompter(deps),
		ImplementTasks(deps),
		SyncTasksCheckboxes(deps),
		GenerateDocs(deps),
		ReleaseTagger(deps),
	}
}

// argString extracts a required string argument, grounded on the
// input-schema validation every descriptor declares.
func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("workflows: missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("workflows: argument %q must be a string", key)
	}
	return s, nil
}

func argStringOr(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func bundleFilePath(deps Deps, category, specID, file string) string {
	return deps.Bundle.BundlePath(category, specID) + "/" + file
}
