package gateway

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/smartspec/smartspec/pkg/apperr"
)

// Store is the credit-ledger persistence the gateway needs. Balance
// serves step 1 of the transaction order; ApplyTransaction carries out
// step 6 in one call so the implementation (pkg/store) can serialize it
// per user with a lock and a single database transaction.
type Store interface {
	// Balance returns the user's current credit balance.
	Balance(ctx context.Context, userID string) (int64, error)

	// ApplyTransaction appends a ledger row and updates the user's
	// balance atomically, returning the appended row with
	// BalanceBefore/BalanceAfter populated. amountCredits is signed.
	ApplyTransaction(ctx context.Context, userID string, kind TransactionKind, amountCredits int64, metadata map[string]string) (CreditTransaction, error)
}

// InsufficientCreditsDetail is the structured payload an
// insufficient_credits error carries.
type InsufficientCreditsDetail struct {
	Balance   int64
	Required  int64
	Shortfall int64
}

// Config tunes gateway-wide defaults.
type Config struct {
	RateLimitPerMinute int
	DefaultMarkupRate  float64
}

func (c Config) withDefaults() Config {
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 60
	}
	if c.DefaultMarkupRate <= 0 {
		c.DefaultMarkupRate = defaultMarkupRate
	}
	return c
}

// Gateway mediates every model invocation: rate limit, estimate,
// pre-flight balance check, call the provider, debit on success.
type Gateway struct {
	cfg     Config
	store   Store
	table   RoutingTable
	limits  *perUserLimiters

	mu        sync.RWMutex
	providers map[string]Provider // keyed by Provider.Name()
}

// New constructs a Gateway over a credit store and routing table.
func New(cfg Config, store Store, table RoutingTable) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		cfg:       cfg,
		store:     store,
		table:     table,
		limits:    newPerUserLimiters(cfg.RateLimitPerMinute),
		providers: make(map[string]Provider),
	}
}

// RegisterProvider makes a provider available to the routing table by name.
func (g *Gateway) RegisterProvider(p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[p.Name()] = p
}

// SetProviderEnabled flips a provider's admin enable/disable switch.
// It takes effect within one request; in-flight calls already past
// provider selection complete under the old configuration.
func (g *Gateway) SetProviderEnabled(name string, enabled bool) error {
	g.mu.RLock()
	p, ok := g.providers[name]
	g.mu.RUnlock()
	if !ok {
		return apperr.Validation("unknown provider %q", name)
	}
	p.SetEnabled(enabled)
	return nil
}

// Complete mediates one chat-completion call under the credit ledger,
// implementing the transaction order: acquire balance, estimate,
// pre-flight check, call provider, debit on success only.
func (g *Gateway) Complete(ctx context.Context, userID string, task TaskClass, priority Priority, req CompletionRequest) (CompletionResponse, error) {
	if ok, retryAfter := g.limits.allow(userID); !ok {
		return CompletionResponse{}, apperr.Governance(
			"retry after "+retryAfter.String(),
			"rate limit exceeded for user %q", userID)
	}

	candidates := g.selectRoutes(task, priority)
	if len(candidates) == 0 {
		return CompletionResponse{}, apperr.Provider(nil, "no_provider_available: no enabled provider for task %q priority %q", task, priority)
	}

	// 1. Acquire user row (read-only snapshot of balance).
	balance, err := g.store.Balance(ctx, userID)
	if err != nil {
		return CompletionResponse{}, apperr.IO(err, "reading balance for user %q", userID)
	}

	var lastErr error
	for _, cand := range candidates {
		route, provider := cand.route, cand.provider

		// 2. Compute estimate.
		expectedOut := req.ExpectedOutputTok
		if expectedOut <= 0 {
			expectedOut = 512 // conservative default absent workflow metadata
		}
		estimate := EstimateCredits(estimateInputTokens(req), expectedOut, route.PriceInPer1k, route.PriceOutPer1k)

		// 3. If insufficient -> fail without side effects. A shortfall is
		// a property of the user's balance, not of this one route, so
		// trying the next candidate would not help.
		if estimate > balance {
			return CompletionResponse{}, apperr.InsufficientCredits(estimate, balance)
		}

		req.Model = route.Provider + "/" + route.Model

		// 4. Call provider.
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			// 8. On provider failure: no debit, no transaction. Fall
			// through to the next candidate route rather than failing
			// the whole request.
			lastErr = apperr.Provider(err, "provider %q failed", route.Provider)
			continue
		}

		// 5. Compute actual debit from reported token usage / cost.
		debit := DeductionCredits(resp.RawCostUSD)

		// 6. In one atomic step: append deduction transaction, update balance.
		if debit > 0 {
			meta := map[string]string{
				"provider": route.Provider,
				"model":    route.Model,
				"task":     string(task),
				"call_id":  uuid.NewString(),
			}
			if _, err := g.store.ApplyTransaction(ctx, userID, TxDeduction, -debit, meta); err != nil {
				return CompletionResponse{}, apperr.IO(err, "recording deduction for user %q", userID)
			}
		}

		// 7. Return completion.
		return resp, nil
	}

	// Every candidate route's provider call failed.
	return CompletionResponse{}, apperr.Provider(lastErr, "no_provider_available: every candidate route failed for task %q priority %q", task, priority)
}

// Topup credits a user's balance for a USD payment, applying the
// configured markup rate. Markup never applies to usage-side debits.
func (g *Gateway) Topup(ctx context.Context, userID string, usdPaid float64) (CreditTransaction, error) {
	credits := TopupCredits(usdPaid, g.cfg.DefaultMarkupRate)
	return g.store.ApplyTransaction(ctx, userID, TxTopup, credits, map[string]string{
		"usd_paid":    formatUSD(usdPaid),
		"markup_rate": formatUSD(g.cfg.DefaultMarkupRate),
	})
}

// routeCandidate pairs a routing-table row with its resolved, enabled
// provider, in the routing table's fallback order.
type routeCandidate struct {
	route    Route
	provider Provider
}

// selectRoutes returns every candidate route for task/priority whose
// provider is registered and currently enabled, in routing-table order,
// so Complete can fall through to the next one on a call failure.
func (g *Gateway) selectRoutes(task TaskClass, priority Priority) []routeCandidate {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []routeCandidate
	for _, route := range g.table.Candidates(task, priority) {
		if p, ok := g.providers[route.Provider]; ok && p.Enabled() {
			out = append(out, routeCandidate{route: route, provider: p})
		}
	}
	return out
}

func estimateInputTokens(req CompletionRequest) int {
	total := len(req.System) / 4
	for _, m := range req.Messages {
		total += len(m.Content) / 4
	}
	return total
}

func formatUSD(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}
