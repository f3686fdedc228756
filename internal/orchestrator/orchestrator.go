// Package orchestrator provides the top-level façade every surface
// (REST, MCP, CLI) drives: it wires the workflow registry and router,
// the checkpointed execution engine, the credit-gated gateway, and the
// bundle manager behind eight typed operations, generalized from the
// agent package's mutex-guarded, option-configured coordinator shape.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/smartspec/smartspec/pkg/apperr"
	"github.com/smartspec/smartspec/pkg/bundle"
	"github.com/smartspec/smartspec/pkg/engine"
	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
)

// Orchestrator is the single coordinating object behind every external
// surface. Its collaborators are assembled once at startup via options
// and never swapped afterward; concurrency safety for in-flight
// executions is the engine's responsibility, not this façade's.
type Orchestrator struct {
	registry  *workflow.Registry
	router    *workflow.Router
	engine    *engine.Engine
	gate      *gateway.Gateway
	bundles   *bundle.Manager
	staleness *bundle.StalenessWatcher
	verifier  *evidence.Verifier
	embedded  *workflow.EmbeddedClassifier
	log       arbor.ILogger

	graphBuilders map[string]GraphBuilder
}

// GraphBuilder turns a workflow's validated arguments into the step
// graph the engine should run for it. Workflows that only need their
// descriptor's Run function wrap it in a single-step graph via
// DescriptorGraph; multi-step workflows (future checkpointed pipelines)
// register a richer builder.
type GraphBuilder func(args map[string]any) engine.Graph

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator) error

// New assembles an Orchestrator from its collaborators.
func New(reg *workflow.Registry, eng *engine.Engine, gate *gateway.Gateway, bundles *bundle.Manager, verifier *evidence.Verifier, opts ...Option) (*Orchestrator, error) {
	if reg == nil || eng == nil || bundles == nil {
		return nil, apperr.Internal(nil, "orchestrator requires a registry, engine, and bundle manager")
	}

	o := &Orchestrator{
		registry:      reg,
		router:        workflow.NewRouter(reg),
		engine:        eng,
		gate:          gate,
		bundles:       bundles,
		verifier:      verifier,
		graphBuilders: make(map[string]GraphBuilder),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("orchestrator: applying option: %w", err)
		}
	}

	for _, d := range reg.List() {
		o.graphBuilders[d.Name] = DescriptorGraph(d)
	}

	return o, nil
}

// WithLogger attaches a logger used for orchestrator-level diagnostics.
func WithLogger(log arbor.ILogger) Option {
	return func(o *Orchestrator) error {
		o.log = log
		return nil
	}
}

// WithStalenessWatcher attaches the watcher Recommend consults to fill
// in BundleState.VerificationStale.
func WithStalenessWatcher(w *bundle.StalenessWatcher) Option {
	return func(o *Orchestrator) error {
		o.staleness = w
		return nil
	}
}

// WithEmbeddedClassifier attaches the offline nearest-neighbor tier
// Ask consults before falling back to the gateway-backed classifier.
func WithEmbeddedClassifier(c *workflow.EmbeddedClassifier) Option {
	return func(o *Orchestrator) error {
		o.embedded = c
		return nil
	}
}

// DescriptorGraph wraps a single workflow descriptor's Run function as
// a one-step graph, the shape every current catalogue entry needs.
func DescriptorGraph(d workflow.Descriptor) GraphBuilder {
	return func(args map[string]any) engine.Graph {
		return engine.Graph{Steps: []engine.Step{{
			ID:   d.Name,
			Name: d.Name,
			Run: func(ctx context.Context, state map[string]any, _ func(float64)) (map[string]any, error) {
				result, err := d.Run(ctx, args)
				if err != nil {
					return state, err
				}
				state["result"] = result
				return state, nil
			},
		}}}
	}
}

// Recommend reports the next pipeline stage for a spec's current
// bundle state. It never mutates anything: a pure read over the
// registry, router, and bundle filesystem.
func (o *Orchestrator) Recommend(category, specID string) (workflow.Recommendation, error) {
	state, err := o.bundleState(category, specID)
	if err != nil {
		return workflow.Recommendation{}, err
	}
	return o.router.Recommend(state)
}

// Execute validates args against the named workflow's input schema,
// checks its apply/network flags against the caller's declared
// permissions, and starts it on the execution engine, returning its
// execution id immediately.
func (o *Orchestrator) Execute(ctx context.Context, workflowName string, args map[string]any, flags Flags) (string, error) {
	d, ok := o.registry.Get(workflowName)
	if !ok {
		return "", apperr.Validation("no workflow named %q is registered", workflowName)
	}
	if err := validateArgs(d, args); err != nil {
		return "", err
	}
	if d.RequiresApply() && !flags.Apply {
		return "", apperr.Governance("pass --apply to run workflows that write governed or runtime artifacts",
			"workflow %q requires --apply", workflowName)
	}
	if d.RequiresNetwork() && !flags.AllowNetwork {
		return "", apperr.Governance("pass --allow-network to run workflows that call external providers",
			"workflow %q requires --allow-network", workflowName)
	}

	build, ok := o.graphBuilders[workflowName]
	if !ok {
		build = DescriptorGraph(d)
	}

	specID := argString(args, "spec_id")
	id, err := o.engine.Execute(ctx, specID, workflowName, args, build(args))
	if err != nil && o.log != nil {
		o.log.Error().Err(err).Str("workflow", workflowName).Msg("execute failed")
	}
	return id, err
}

// Status reports the current lifecycle snapshot of an execution.
func (o *Orchestrator) Status(executionID string) (engine.Execution, error) {
	exec, ok := o.engine.Status(executionID)
	if !ok {
		return engine.Execution{}, apperr.Validation("no execution %q is known", executionID)
	}
	return exec, nil
}

// Events streams an execution's typed progress events until the first
// terminal event, or until ctx is cancelled.
func (o *Orchestrator) Events(ctx context.Context, executionID string) <-chan engine.Event {
	source := o.engine.Events(executionID)
	out := make(chan engine.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-source:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.IsTerminal() {
					return
				}
			}
		}
	}()
	return out
}

// Respond answers a paused execution's human-in-the-loop interrupt.
func (o *Orchestrator) Respond(interruptID string, action engine.InterruptAction, payload map[string]any) error {
	return o.engine.Respond(interruptID, action, payload)
}

// Cancel requests cooperative cancellation of a running execution.
func (o *Orchestrator) Cancel(executionID string) error {
	return o.engine.Cancel(executionID)
}

// Resume continues a prior execution from a durable checkpoint,
// reconstructing the step graph for the checkpoint's workflow from the
// registry and returning a fresh execution id.
func (o *Orchestrator) Resume(ctx context.Context, specID, workflowName, checkpointID string, args map[string]any) (string, error) {
	d, ok := o.registry.Get(workflowName)
	if !ok {
		return "", apperr.Validation("no workflow named %q is registered", workflowName)
	}
	build, ok := o.graphBuilders[workflowName]
	if !ok {
		build = DescriptorGraph(d)
	}
	return o.engine.Resume(ctx, specID, workflowName, checkpointID, build(args))
}

// AskResult is what Ask returns: the classification the router
// assigned plus, for recommendation queries, the resolved
// recommendation.
type AskResult struct {
	Classification workflow.Classification
	Recommendation *workflow.Recommendation
}

// Ask classifies a natural-language query through the router's
// three-tier cascade and, for a recommendation query naming a spec
// id, resolves it all the way to a concrete recommendation.
func (o *Orchestrator) Ask(ctx context.Context, category, text string) (AskResult, error) {
	var llm workflow.GatewayClassifier
	if o.gate != nil {
		llm = o.gate
	}

	c, err := o.router.Classify(ctx, text, o.embedded, llm)
	if err != nil {
		return AskResult{}, fmt.Errorf("orchestrator: classifying query: %w", err)
	}
	result := AskResult{Classification: c}

	if c.Type == workflow.QueryRecommendation && c.SpecID != "" {
		rec, err := o.Recommend(category, c.SpecID)
		if err != nil {
			return result, err
		}
		result.Recommendation = &rec
	}
	return result, nil
}

// Flags are the universal governance opt-ins every workflow invocation
// is checked against before it may run.
type Flags struct {
	Apply        bool
	AllowNetwork bool
}

// bundleState inspects the bundle filesystem and staleness watcher to
// produce the BundleState the router's decision table needs.
func (o *Orchestrator) bundleState(category, specID string) (workflow.BundleState, error) {
	path := o.bundles.BundlePath(category, specID)

	var s workflow.BundleState
	s.HasSpec = fileExists(path, "spec.md")
	s.HasPlan = fileExists(path, "plan.md")
	s.HasTasks = fileExists(path, "tasks.md")

	if !s.HasTasks {
		return s, nil
	}

	if o.staleness != nil {
		stale, err := o.staleness.IsStale(category, specID)
		if err != nil {
			return s, apperr.IO(err, "checking verification staleness for %q", specID)
		}
		s.VerificationStale = stale
	} else {
		s.VerificationStale = true
	}

	if s.VerificationStale || o.verifier == nil {
		return s, nil
	}

	tasksData, err := o.bundles.ReadFile(filepath.Join(path, "tasks.md"))
	if err != nil {
		return s, apperr.IO(err, "reading tasks.md for %q", specID)
	}
	tasks, err := evidence.ParseTasks(string(tasksData))
	if err != nil {
		return s, fmt.Errorf("orchestrator: parsing tasks.md: %w", err)
	}
	report, err := o.verifier.Verify(tasks)
	if err != nil {
		return s, fmt.Errorf("orchestrator: verifying tasks: %w", err)
	}

	s.VerificationFailed = report.Counts[evidence.ClassNotImplemented] > 0 ||
		report.Counts[evidence.ClassMissingTests] > 0 ||
		report.Counts[evidence.ClassMissingCode] > 0
	s.VerificationClean = !s.VerificationFailed
	s.UnverifiedTasksExist = hasUnverifiedClaimed(tasks, report)
	s.AllTasksChecked = allClaimed(tasks)
	s.PromptPackMissing = !fileExists(o.bundles.PromptPackPath(specID), "implement.md")
	s.SyncedNoDocs = s.AllTasksChecked && s.VerificationClean && !fileExists(path, "CHANGELOG.md")
	s.DocsBuiltNoRelease = fileExists(path, "CHANGELOG.md") && !fileExists(path, "RELEASE")

	return s, nil
}

func hasUnverifiedClaimed(tasks []evidence.Task, report evidence.Report) bool {
	for i, t := range tasks {
		if !t.Claimed {
			continue
		}
		if i < len(report.Verdicts) && report.Verdicts[i].Classification != evidence.ClassVerified {
			return true
		}
	}
	return false
}

func allClaimed(tasks []evidence.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if !t.Claimed {
			return false
		}
	}
	return true
}

func validateArgs(d workflow.Descriptor, args map[string]any) error {
	for name, spec := range d.InputSchema {
		if !spec.Required {
			continue
		}
		if _, ok := args[name]; !ok {
			return apperr.Validation("workflow %q requires argument %q", d.Name, name)
		}
	}
	return nil
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func fileExists(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && !info.IsDir()
}
