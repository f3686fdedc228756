package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartspec/smartspec/pkg/bundle"
	"github.com/smartspec/smartspec/pkg/engine"
	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/smartspec/smartspec/pkg/workflow"
	"github.com/smartspec/smartspec/pkg/workflows"
)

type memStore struct {
	mu          sync.Mutex
	executions  map[string]engine.Execution
	checkpoints map[string]engine.Checkpoint
}

func newMemStore() *memStore {
	return &memStore{executions: map[string]engine.Execution{}, checkpoints: map[string]engine.Checkpoint{}}
}

func (s *memStore) SaveExecution(_ context.Context, e engine.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (s *memStore) UpdateExecution(_ context.Context, e engine.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (s *memStore) SaveCheckpoint(_ context.Context, c engine.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[c.ID] = c
	return nil
}

func (s *memStore) LoadCheckpoint(_ context.Context, id string) (engine.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[id], nil
}

type stubProvider struct{ response string }

func (p *stubProvider) Name() string                               { return "stub" }
func (p *stubProvider) Models() []string                           { return []string{"stub-model"} }
func (p *stubProvider) Enabled() bool                              { return true }
func (p *stubProvider) SetEnabled(bool)                            {}
func (p *stubProvider) Complete(_ context.Context, _ gateway.CompletionRequest) (gateway.CompletionResponse, error) {
	return gateway.CompletionResponse{Content: p.response, RawCostUSD: 0.01}, nil
}

type unlimitedCreditStore struct{ mu sync.Mutex }

func (s *unlimitedCreditStore) Balance(_ context.Context, _ string) (int64, error) { return 1_000_000, nil }
func (s *unlimitedCreditStore) ApplyTransaction(_ context.Context, userID string, kind gateway.TransactionKind, amount int64, meta map[string]string) (gateway.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gateway.CreditTransaction{UserID: userID, Kind: kind, AmountCredits: amount, BalanceBefore: 1_000_000, BalanceAfter: 1_000_000 + amount, Metadata: meta}, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	root := t.TempDir()

	mgr, err := bundle.NewManager(root)
	require.NoError(t, err)

	table := gateway.NewRoutingTable()
	for _, task := range []gateway.TaskClass{gateway.TaskChat, gateway.TaskCodeGeneration, gateway.TaskReasoning, gateway.TaskSummarization} {
		for _, pr := range []gateway.Priority{gateway.PriorityQuality, gateway.PriorityCost, gateway.PrioritySpeed} {
			table.AddRoute(task, pr, gateway.Route{Provider: "stub", Model: "stub-model"})
		}
	}
	gw := gateway.New(gateway.Config{}, &unlimitedCreditStore{}, table)
	gw.RegisterProvider(&stubProvider{response: "draft content"})

	verifier := evidence.NewVerifier(root)
	deps := workflows.Deps{Bundle: mgr, Gate: gw, Verify: verifier}

	reg := workflow.NewRegistry()
	for _, d := range workflows.All(deps) {
		require.NoError(t, reg.Register(d))
	}

	eng := engine.New(engine.Config{}, newMemStore(), mgr, nil)

	watcher, err := bundle.NewStalenessWatcher(mgr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })

	orch, err := New(reg, eng, gw, mgr, verifier, WithStalenessWatcher(watcher))
	require.NoError(t, err)
	return orch, root
}

func TestRecommendWithNoBundleSuggestsGenerateSpec(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	rec, err := orch.Recommend("feature", "spec-feature-001-demo")
	require.NoError(t, err)
	require.Equal(t, "generate_spec", rec.Workflow)
}

func TestRecommendWithSpecOnlySuggestsGeneratePlan(t *testing.T) {
	orch, root := newTestOrchestrator(t)

	bundlePath := filepath.Join(root, "specs", "feature", "spec-feature-001-demo")
	require.NoError(t, os.MkdirAll(bundlePath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundlePath, "spec.md"), []byte("# Demo\n"), 0o644))

	rec, err := orch.Recommend("feature", "spec-feature-001-demo")
	require.NoError(t, err)
	require.Equal(t, "generate_plan", rec.Workflow)
}

func TestExecuteRejectsUnknownWorkflow(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	_, err := orch.Execute(context.Background(), "no_such_workflow", nil, Flags{})
	require.Error(t, err)
}

func TestExecuteRequiresApplyFlagForGoverningWorkflow(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	args := map[string]any{"category": "feature", "spec_id": "spec-feature-001-demo", "prompt": "build a widget exporter"}
	_, err := orch.Execute(context.Background(), "generate_spec", args, Flags{})
	require.Error(t, err)
}

func TestExecuteRunsRegisteredWorkflowToCompletion(t *testing.T) {
	orch, root := newTestOrchestrator(t)
	args := map[string]any{"category": "feature", "spec_id": "spec-feature-001-demo", "prompt": "build a widget exporter"}

	id, err := orch.Execute(context.Background(), "generate_spec", args, Flags{Apply: true, AllowNetwork: true})
	require.NoError(t, err)

	events := orch.Events(context.Background(), id)
	var last engine.Event
	for ev := range events {
		last = ev
	}
	require.Equal(t, engine.EventWorkflowCompleted, last.Type)

	exec, err := orch.Status(id)
	require.NoError(t, err)
	require.Equal(t, engine.StatusCompleted, exec.Status)

	_, err = os.Stat(filepath.Join(root, "specs", "feature", "spec-feature-001-demo", "spec.md"))
	require.NoError(t, err)
}

func TestAskClassifiesRecommendationQuery(t *testing.T) {
	orch, root := newTestOrchestrator(t)

	bundlePath := filepath.Join(root, "specs", "feature", "spec-feature-001-demo")
	require.NoError(t, os.MkdirAll(bundlePath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundlePath, "spec.md"), []byte("# Demo\n"), 0o644))

	result, err := orch.Ask(context.Background(), "feature", "what should I do next for spec-feature-001-demo")
	require.NoError(t, err)
	require.Equal(t, workflow.QueryRecommendation, result.Classification.Type)
	require.NotNil(t, result.Recommendation)
	require.Equal(t, "generate_plan", result.Recommendation.Workflow)
}

func TestCancelUnknownExecutionFails(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	err := orch.Cancel("no-such-execution")
	require.Error(t, err)
}

func TestEventsContextCancelStopsStream(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	args := map[string]any{"category": "feature", "spec_id": "spec-feature-002-demo", "prompt": "build another widget"}
	id, err := orch.Execute(context.Background(), "generate_spec", args, Flags{Apply: true, AllowNetwork: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for range orch.Events(ctx, id) {
	}
}
