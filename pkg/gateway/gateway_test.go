package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	enabled    bool
	rawCostUSD float64
	failErr    error
}

func (p *fakeProvider) Name() string     { return p.name }
func (p *fakeProvider) Models() []string { return []string{"test-model"} }
func (p *fakeProvider) Enabled() bool    { return p.enabled }
func (p *fakeProvider) SetEnabled(v bool) { p.enabled = v }
func (p *fakeProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	if p.failErr != nil {
		return CompletionResponse{}, p.failErr
	}
	return CompletionResponse{Content: "ok", RawCostUSD: p.rawCostUSD}, nil
}

type memCreditStore struct {
	mu      sync.Mutex
	balance map[string]int64
	txs     []CreditTransaction
}

func newMemCreditStore() *memCreditStore {
	return &memCreditStore{balance: map[string]int64{}}
}

func (s *memCreditStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance[userID], nil
}

func (s *memCreditStore) ApplyTransaction(_ context.Context, userID string, kind TransactionKind, amount int64, meta map[string]string) (CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.balance[userID]
	after := before + amount
	tx := CreditTransaction{
		ID: "tx", UserID: userID, Kind: kind, AmountCredits: amount,
		BalanceBefore: before, BalanceAfter: after, Metadata: meta,
	}
	s.balance[userID] = after
	s.txs = append(s.txs, tx)
	return tx, nil
}

func testTable(providerName string) RoutingTable {
	table := NewRoutingTable()
	table.AddRoute(TaskChat, PriorityCost, Route{Provider: providerName, Model: "test-model", PriceInPer1k: 0.001, PriceOutPer1k: 0.002})
	return table
}

func TestCompleteDebitsActualCostOnSuccess(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 1000

	provider := &fakeProvider{name: "fake", enabled: true, rawCostUSD: 0.10}
	gw := New(Config{}, store, testTable("fake"))
	gw.RegisterProvider(provider)

	resp, err := gw.Complete(context.Background(), "u1", TaskChat, PriorityCost, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	bal, _ := store.Balance(context.Background(), "u1")
	assert.Equal(t, int64(900), bal) // ceil(0.10*1000) = 100 credits debited
	assert.Len(t, store.txs, 1)
	assert.Equal(t, TxDeduction, store.txs[0].Kind)
}

func TestCompleteFailsInsufficientCreditsWithoutSideEffects(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 0

	provider := &fakeProvider{name: "fake", enabled: true, rawCostUSD: 0.10}
	gw := New(Config{}, store, testTable("fake"))
	gw.RegisterProvider(provider)

	_, err := gw.Complete(context.Background(), "u1", TaskChat, PriorityCost, CompletionRequest{
		Messages:          []Message{{Role: "user", Content: "hi"}},
		ExpectedOutputTok: 100,
	})
	require.Error(t, err)
	assert.Empty(t, store.txs)
}

func TestCompleteProducesNoTransactionOnProviderFailure(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 1000

	provider := &fakeProvider{name: "fake", enabled: true, failErr: assertErr{}}
	gw := New(Config{}, store, testTable("fake"))
	gw.RegisterProvider(provider)

	_, err := gw.Complete(context.Background(), "u1", TaskChat, PriorityCost, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Empty(t, store.txs)

	bal, _ := store.Balance(context.Background(), "u1")
	assert.Equal(t, int64(1000), bal)
}

type assertErr struct{}

func (assertErr) Error() string { return "provider exploded" }

func TestCompleteFallsBackToNextEnabledProvider(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 1000

	primary := &fakeProvider{name: "primary", enabled: false}
	fallback := &fakeProvider{name: "fallback", enabled: true, rawCostUSD: 0.01}

	table := NewRoutingTable()
	table.AddRoute(TaskChat, PriorityCost, Route{Provider: "primary", Model: "m", PriceInPer1k: 0.001, PriceOutPer1k: 0.001})
	table.AddRoute(TaskChat, PriorityCost, Route{Provider: "fallback", Model: "m", PriceInPer1k: 0.001, PriceOutPer1k: 0.001})

	gw := New(Config{}, store, table)
	gw.RegisterProvider(primary)
	gw.RegisterProvider(fallback)

	resp, err := gw.Complete(context.Background(), "u1", TaskChat, PriorityCost, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestCompleteFallsBackOnProviderCallFailure(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 1000

	primary := &fakeProvider{name: "primary", enabled: true, failErr: assertErr{}}
	fallback := &fakeProvider{name: "fallback", enabled: true, rawCostUSD: 0.01}

	table := NewRoutingTable()
	table.AddRoute(TaskChat, PriorityCost, Route{Provider: "primary", Model: "m", PriceInPer1k: 0.001, PriceOutPer1k: 0.001})
	table.AddRoute(TaskChat, PriorityCost, Route{Provider: "fallback", Model: "m", PriceInPer1k: 0.001, PriceOutPer1k: 0.001})

	gw := New(Config{}, store, table)
	gw.RegisterProvider(primary)
	gw.RegisterProvider(fallback)

	resp, err := gw.Complete(context.Background(), "u1", TaskChat, PriorityCost, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	// The fallback route's debit must be the only transaction; the
	// failed primary call must never have touched the ledger.
	assert.Len(t, store.txs, 1)
	assert.Equal(t, "fallback", store.txs[0].Metadata["provider"])
}

func TestCompleteReturnsNoProviderAvailableWhenEveryRouteFails(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 1000

	primary := &fakeProvider{name: "primary", enabled: true, failErr: assertErr{}}
	fallback := &fakeProvider{name: "fallback", enabled: true, failErr: assertErr{}}

	table := NewRoutingTable()
	table.AddRoute(TaskChat, PriorityCost, Route{Provider: "primary", Model: "m", PriceInPer1k: 0.001, PriceOutPer1k: 0.001})
	table.AddRoute(TaskChat, PriorityCost, Route{Provider: "fallback", Model: "m", PriceInPer1k: 0.001, PriceOutPer1k: 0.001})

	gw := New(Config{}, store, table)
	gw.RegisterProvider(primary)
	gw.RegisterProvider(fallback)

	_, err := gw.Complete(context.Background(), "u1", TaskChat, PriorityCost, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	assert.Empty(t, store.txs)
}

func TestTopupAppliesMarkup(t *testing.T) {
	store := newMemCreditStore()
	gw := New(Config{DefaultMarkupRate: 0.15}, store, NewRoutingTable())

	tx, err := gw.Topup(context.Background(), "u1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(86956), tx.AmountCredits)
	assert.Equal(t, TxTopup, tx.Kind)
}

func TestTopupThenEqualDeductionReturnsToPreTopupBalance(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 500
	gw := New(Config{}, store, NewRoutingTable())

	tx, err := gw.Topup(context.Background(), "u1", 10)
	require.NoError(t, err)

	_, err = store.ApplyTransaction(context.Background(), "u1", TxDeduction, -tx.AmountCredits, nil)
	require.NoError(t, err)

	bal, _ := store.Balance(context.Background(), "u1")
	assert.Equal(t, int64(500), bal)
}

func TestEveryTransactionRowHasConsistentBalanceArithmetic(t *testing.T) {
	store := newMemCreditStore()
	store.balance["u1"] = 100
	_, err := store.ApplyTransaction(context.Background(), "u1", TxAdjustment, 50, nil)
	require.NoError(t, err)

	for _, tx := range store.txs {
		assert.Equal(t, tx.BalanceBefore+tx.AmountCredits, tx.BalanceAfter)
	}
}
