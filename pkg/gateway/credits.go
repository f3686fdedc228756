package gateway

import (
	"math"
	"time"
)

// TransactionKind is the closed set of credit ledger entry kinds.
type TransactionKind string

const (
	TxTopup      TransactionKind = "topup"
	TxDeduction  TransactionKind = "deduction"
	TxRefund     TransactionKind = "refund"
	TxAdjustment TransactionKind = "adjustment"
)

// CreditTransaction is one append-only ledger row. balance_after must
// always equal balance_before + signed(amount); corrections are new
// rows, never edits.
type CreditTransaction struct {
	ID            string
	UserID        string
	Kind          TransactionKind
	AmountCredits int64 // signed: positive for topup/refund, negative for deduction
	BalanceBefore int64
	BalanceAfter  int64
	Metadata      map[string]string
	CreatedAt     time.Time
}

// defaultMarkupRate is applied only to top-ups; usage is billed at
// actual provider cost.
const defaultMarkupRate = 0.15

// creditsPerUSD is the fixed conversion rate: 1 USD is exactly 1000 credits.
const creditsPerUSD = 1000

// TopupCredits computes the credits a user receives for paying
// usdPaid, net of the markup rate retained as revenue.
func TopupCredits(usdPaid, markupRate float64) int64 {
	if markupRate < 0 {
		markupRate = 0
	}
	return int64(math.Floor(usdPaid * creditsPerUSD / (1 + markupRate)))
}

// DeductionCredits converts a provider-currency cost into the integer
// credit amount to debit. Markup never applies to usage.
func DeductionCredits(rawCostUSD float64) int64 {
	if rawCostUSD <= 0 {
		return 0
	}
	return int64(math.Ceil(rawCostUSD * creditsPerUSD))
}

// EstimateCredits projects the pre-flight cost of a call from expected
// token counts and a provider's per-1k-token pricing.
func EstimateCredits(inputTokens, expectedOutputTokens int, priceInPer1k, priceOutPer1k float64) int64 {
	usd := float64(inputTokens)/1000*priceInPer1k + float64(expectedOutputTokens)/1000*priceOutPer1k
	if usd <= 0 {
		return 0
	}
	return int64(math.Ceil(usd * creditsPerUSD))
}
