package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecommendDecisionTable(t *testing.T) {
	r := NewRouter(NewRegistry())

	rec, err := r.Recommend(BundleState{})
	require.NoError(t, err)
	require.Equal(t, "generate_spec", rec.Workflow)

	rec, err = r.Recommend(BundleState{HasSpec: true})
	require.NoError(t, err)
	require.Equal(t, "generate_plan", rec.Workflow)

	rec, err = r.Recommend(BundleState{HasSpec: true, HasPlan: true})
	require.NoError(t, err)
	require.Equal(t, "generate_tasks", rec.Workflow)

	rec, err = r.Recommend(BundleState{HasSpec: true, HasPlan: true, HasTasks: true, VerificationStale: true})
	require.NoError(t, err)
	require.Equal(t, "verify_tasks", rec.Workflow)

	rec, err = r.Recommend(BundleState{HasSpec: true, HasPlan: true, HasTasks: true, UnverifiedTasksExist: true})
	require.NoError(t, err)
	require.Equal(t, "implement_tasks", rec.Workflow)

	rec, err = r.Recommend(BundleState{HasSpec: true, HasPlan: true, HasTasks: true, AllTasksChecked: true, VerificationClean: true})
	require.NoError(t, err)
	require.Equal(t, "sync_tasks_checkboxes", rec.Workflow)
}

func TestRecommendRequiresApplyWarning(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Descriptor{
		Name: "generate_spec", Category: CategorySpec,
		Effects: []Effect{EffectWriteGoverned},
		Run:     func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
	}))

	r := NewRouter(reg)
	rec, err := r.Recommend(BundleState{})
	require.NoError(t, err)
	require.Contains(t, rec.Warnings, "requires --apply to write governed artifacts")
}

func TestLocalClassifierConfidence(t *testing.T) {
	c := LocalClassifier{}.Classify("what is the status of spec-feature-003-login")
	require.Equal(t, QueryStatus, c.Type)
	require.GreaterOrEqual(t, c.Confidence, confidenceFloor)
	require.Equal(t, "spec-feature-003-login", c.SpecID)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	d := Descriptor{Name: "x", Category: CategorySpec, Run: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }}
	require.NoError(t, reg.Register(d))
	require.Error(t, reg.Register(d))
}
