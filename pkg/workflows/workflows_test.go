package workflows

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/smartspec/smartspec/pkg/bundle"
	"github.com/smartspec/smartspec/pkg/evidence"
	"github.com/smartspec/smartspec/pkg/gateway"
	"github.com/stretchr/testify/require"
)

// writeExportFixtures plants the code and test files fixtureTasksMD's
// evidence hooks point at, so the widget export task classifies as
// verified instead of not_implemented.
func writeExportFixtures(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg/widget"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg/widget/widget.go"), []byte("package widget\n\nfunc Export() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg/widget/widget_test.go"), []byte("package widget\n\nfunc TestExport(t *testing.T) {}\n"), 0o644))
}

// stubProvider always succeeds with a fixed response, standing in for
// a real model provider across every workflow test.
type stubProvider struct {
	name     string
	response string
}

func (p *stubProvider) Name() string      { return p.name }
func (p *stubProvider) Models() []string  { return []string{"stub-model"} }
func (p *stubProvider) Enabled() bool     { return true }
func (p *stubProvider) SetEnabled(v bool) {}
func (p *stubProvider) Complete(_ context.Context, req gateway.CompletionRequest) (gateway.CompletionResponse, error) {
	return gateway.CompletionResponse{Content: p.response, RawCostUSD: 0.01}, nil
}

// unlimitedCreditStore reports an effectively unlimited balance so
// workflow tests never trip the insufficient-credits path.
type unlimitedCreditStore struct {
	mu  sync.Mutex
	txs []gateway.CreditTransaction
}

func (s *unlimitedCreditStore) Balance(_ context.Context, userID string) (int64, error) {
	return 1_000_000, nil
}

func (s *unlimitedCreditStore) ApplyTransaction(_ context.Context, userID string, kind gateway.TransactionKind, amount int64, meta map[string]string) (gateway.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := gateway.CreditTransaction{UserID: userID, Kind: kind, AmountCredits: amount, BalanceBefore: 1_000_000, BalanceAfter: 1_000_000 + amount, Metadata: meta}
	s.txs = append(s.txs, tx)
	return tx, nil
}

// newTestDeps builds Deps with a stub gateway provider wired onto
// every task/priority combination the workflows in this package use,
// a bundle manager rooted at a fresh temp directory, and an evidence
// verifier rooted at the same directory.
func newTestDeps(t *testing.T, response string) Deps {
	deps, _ := newTestDepsWithRoot(t, response)
	return deps
}

// newTestDepsWithRoot also returns the repo root the bundle manager
// and evidence verifier share, for tests that plant fixture files
// evidence hooks resolve against.
func newTestDepsWithRoot(t *testing.T, response string) (Deps, string) {
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
	gw.RegisterProvider(&stubProvider{name: "stub", response: response})

	return Deps{
		Bundle: mgr,
		Gate:   gw,
		Verify: evidence.NewVerifier(root),
	}, root
}
