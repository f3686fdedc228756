package workflow

import (
	"time"

	"github.com/smartspec/smartspec/pkg/apperr"
)

// BundleState is the observed repository state the router reasons over
// to produce a recommendation for a given spec id.
type BundleState struct {
	HasSpec              bool
	HasPlan              bool
	HasTasks             bool
	VerificationStale    bool // tasks.md changed since the last verification, or never run
	VerificationFailed   bool
	PromptPackMissing    bool
	UnverifiedTasksExist bool // at least one unchecked, verifiable task remains
	AllTasksChecked      bool
	VerificationClean    bool
	SyncedNoDocs         bool
	DocsBuiltNoRelease   bool
	HasPrompt            bool // a draft prompt was supplied in place of a spec
}

// Recommendation is one row of the decision table, resolved against a
// concrete BundleState.
type Recommendation struct {
	Workflow          string
	Rationale         string
	EstimatedDuration time.Duration
	Warnings          []string
}

// Router recommends the next pipeline stage and classifies natural
// language queries against the registry.
type Router struct {
	registry *Registry
}

// NewRouter returns a Router backed by reg.
func NewRouter(reg *Registry) *Router {
	return &Router{registry: reg}
}

// Recommend applies the fixed decision table in order, returning the
// first matching row. The table mirrors the pipeline's natural
// progression: spec → plan → tasks → verify → implement/report →
// sync → docs → release.
func (r *Router) Recommend(s BundleState) (Recommendation, error) {
	switch {
	case !s.HasSpec:
		// draft-from-prompt is the same workflow, just prompt-driven input
		return r.resolve("generate_spec", "no spec file exists for this bundle", nil)

	case s.HasSpec && !s.HasPlan:
		return r.resolve("generate_plan", "a spec exists but no plan has been generated", nil)

	case s.HasPlan && !s.HasTasks:
		return r.resolve("generate_tasks", "a plan exists but no tasks have been generated", nil)

	case s.HasTasks && s.VerificationStale:
		return r.resolve("verify_tasks", "tasks exist but verification is stale or has never run", nil)

	case s.VerificationFailed && s.PromptPackMissing:
		return r.resolve("report_implement_prompter", "verification failed and no prompt pack exists to guide a retry", nil)

	case s.UnverifiedTasksExist:
		warnings := []string{}
		if s.VerificationFailed {
			warnings = append(warnings, "checkboxes may disagree with evidence — consider syncing")
		}
		return r.resolve("implement_tasks", "unchecked, verifiable tasks remain", warnings)

	case s.AllTasksChecked && s.VerificationClean:
		return r.resolve("sync_tasks_checkboxes", "all tasks are checked and verification is clean", nil)

	case s.SyncedNoDocs:
		return r.resolve("generate_docs", "tasks are synced but no documentation artifact exists", nil)

	case s.DocsBuiltNoRelease:
		return r.resolve("release_tagger", "documentation is built but no release tag exists", nil)
	}

	return Recommendation{}, apperr.Internal(nil, "bundle state matches no decision table row")
}

func (r *Router) resolve(name, rationale string, warnings []string) (Recommendation, error) {
	rec := Recommendation{Workflow: name, Rationale: rationale, Warnings: warnings}

	if r.registry != nil {
		if d, ok := r.registry.Get(name); ok {
			if d.RequiresApply() {
				rec.Warnings = append(rec.Warnings, "requires --apply to write governed artifacts")
			}
			if d.RequiresNetwork() {
				rec.Warnings = append(rec.Warnings, "requires --allow-network to call external providers")
			}
		}
	}

	return rec, nil
}
