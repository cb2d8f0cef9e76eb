package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsift/finsift/internal/model"
)

func TestClassifyMerchantBeforeText(t *testing.T) {
	classifier := NewClassifier()

	// The merchant hit wins even though the body mentions a refund.
	category, sub := classifier.Classify("Swiggy", "refund processed for your order")
	assert.Equal(t, "Food & Dining", category)
	assert.Equal(t, "Delivery", sub)
}

func TestClassifyFallsBackToText(t *testing.T) {
	classifier := NewClassifier()

	category, sub := classifier.Classify("Unknown", "your Netflix subscription renewed")
	assert.Equal(t, "Entertainment", category)
	assert.Equal(t, "", sub)
}

func TestClassifyDefault(t *testing.T) {
	classifier := NewClassifier()

	category, sub := classifier.Classify("Acme Corp", "payment processed")
	assert.Equal(t, model.DefaultCategory, category)
	assert.Equal(t, "", sub)
}

func TestClassifyCustomRulesTakePriority(t *testing.T) {
	classifier := NewClassifierWithRules([]CategoryRule{
		{Category: "Coffee", SubCategory: "Office", Keywords: []string{"blue tokai"}},
	})

	category, sub := classifier.Classify("Blue Tokai Roasters", "")
	assert.Equal(t, "Coffee", category)
	assert.Equal(t, "Office", sub)
}

func TestClassifyIncomeKeywords(t *testing.T) {
	classifier := NewClassifier()

	category, sub := classifier.Classify("Unknown", "salary credited for March")
	assert.Equal(t, "Income", category)
	assert.Equal(t, "Salary", sub)
}
