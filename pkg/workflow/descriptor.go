// Package workflow provides the workflow registry and the router that
// recommends the next pipeline stage or classifies a natural-language
// query against the registered workflows.
package workflow

import (
	"context"
	"regexp"
)

// Category groups workflows by pipeline stage.
type Category string

const (
	CategorySpec      Category = "spec"
	CategoryPlan      Category = "plan"
	CategoryTasks     Category = "tasks"
	CategoryImplement Category = "implement"
	CategoryVerify    Category = "verify"
	CategorySync      Category = "sync"
	CategoryDocs      Category = "docs"
	CategoryRelease   Category = "release"
)

// Effect names a side effect a workflow may produce, used to compute
// whether the universal `apply` / `allow-network` flags are required.
type Effect string

const (
	EffectWriteGoverned Effect = "write_governed_artifact" // writes under specs/**
	EffectWriteRuntime  Effect = "write_runtime_state"      // writes under .spec/**
	EffectNetwork       Effect = "network_call"             // calls an LLM provider or external API
)

// Run is the function a workflow executes; it receives the frozen
// argument map validated against the descriptor's InputSchema.
type Run func(ctx context.Context, args map[string]any) (any, error)

// Descriptor describes one registered workflow.
type Descriptor struct {
	Name        string
	Category    Category
	Version     string
	Summary     string
	Effects     []Effect
	InputSchema map[string]ArgSpec
	Triggers    []*regexp.Regexp // natural-language trigger patterns
	Run         Run
}

// ArgSpec describes one named argument a workflow accepts.
type ArgSpec struct {
	Required bool
	Type     string // "string", "bool", "path"
}

// RequiresApply reports whether this workflow writes a governed artifact
// (specs/**) or runtime state (.spec/**); either effect needs the
// universal `apply` opt-in before it may run.
func (d Descriptor) RequiresApply() bool {
	for _, e := range d.Effects {
		if e == EffectWriteGoverned || e == EffectWriteRuntime {
			return true
		}
	}
	return false
}

// RequiresNetwork reports whether this workflow needs `allow-network`.
func (d Descriptor) RequiresNetwork() bool {
	for _, e := range d.Effects {
		if e == EffectNetwork {
			return true
		}
	}
	return false
}

// Validate checks that a descriptor is well-formed before registration.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return errDescriptor("workflow descriptor missing a name")
	}
	if d.Category == "" {
		return errDescriptor("workflow %q missing a category", d.Name)
	}
	if d.Run == nil {
		return errDescriptor("workflow %q missing a Run function", d.Name)
	}
	return nil
}
