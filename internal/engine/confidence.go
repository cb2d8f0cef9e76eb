package engine

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finsift/finsift/internal/model"
)

// outlierAmount triggers the large-amount penalty; amounts this big are
// more often OTPs, loan offers, or balance statements than real spends.
var outlierAmount = decimal.NewFromInt(100000)

var transactionKeywords = []string{
	"debited", "credited", "spent", "payment", "purchase", "purchased",
	"withdrawn", "transferred", "paid", "txn", "transaction",
}

// Score computes the review confidence for a parsed candidate: base 0.5,
// +0.1 per corroborating signal, -0.2 for outlier amounts, clamped to
// [0,1]. The integrating service decides what score skips review.
func Score(c *model.Candidate, rawText string) float64 {
	score := 0.5

	if c.HasMerchant() {
		score += 0.1
	}
	if c.AccountRef != "" {
		score += 0.1
	}
	if c.BalanceSeen {
		score += 0.1
	}
	if c.PaymentMethod != model.PaymentOther {
		score += 0.1
	}
	if c.Category != "" && c.Category != model.DefaultCategory {
		score += 0.1
	}
	if c.Amount.GreaterThan(outlierAmount) {
		score -= 0.2
	}

	lower := strings.ToLower(rawText)
	for _, kw := range transactionKeywords {
		if strings.Contains(lower, kw) {
			score += 0.1
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
