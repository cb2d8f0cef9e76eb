package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/finsift/finsift/internal/model"
)

func TestScoreSignals(t *testing.T) {
	base := model.Candidate{
		Amount:   decimal.NewFromInt(250),
		Currency: "INR",
		Merchant: model.UnknownMerchant,
		Category: model.DefaultCategory,
		Type:     model.TypeExpense,
	}

	tests := []struct {
		name    string
		mutate  func(*model.Candidate)
		rawText string
		want    float64
	}{
		{
			name:    "bare candidate",
			mutate:  func(_ *model.Candidate) {},
			rawText: "some text",
			want:    0.5,
		},
		{
			name:    "transaction keyword",
			mutate:  func(_ *model.Candidate) {},
			rawText: "Rs.250 debited",
			want:    0.6,
		},
		{
			name: "merchant adds a step",
			mutate: func(c *model.Candidate) {
				c.Merchant = "Dominos"
			},
			rawText: "some text",
			want:    0.6,
		},
		{
			name: "all signals",
			mutate: func(c *model.Candidate) {
				c.Merchant = "Dominos"
				c.AccountRef = "1234"
				c.BalanceSeen = true
				c.PaymentMethod = model.PaymentUPI
				c.Category = "Food & Dining"
			},
			rawText: "Rs.250 debited at Dominos",
			want:    1.0,
		},
		{
			name: "outlier amount penalized",
			mutate: func(c *model.Candidate) {
				c.Amount = decimal.NewFromInt(500000)
			},
			rawText: "500000 credited",
			want:    0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.InDelta(t, tt.want, Score(&c, tt.rawText), 1e-9)
		})
	}
}

func TestScoreClamped(t *testing.T) {
	c := model.Candidate{
		Amount:   decimal.NewFromInt(900000),
		Merchant: model.UnknownMerchant,
		Category: model.DefaultCategory,
	}
	score := Score(&c, "loan offer")
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}
