// Package parse turns raw bank notification text (SMS and email) into
// candidate transactions.
package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
)

// Amount patterns are tried in order; the first match wins. Either a
// currency-marked number or a bare number immediately followed by a
// debit/credit keyword.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
	regexp.MustCompile(`(?i)([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s*(?:rs\.?|inr|₹)`),
	regexp.MustCompile(`(?i)\b([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s+(?:has been\s+|was\s+)?(?:debited|credited|deducted|spent|withdrawn|deduction|debit|credit)`),
}

// Merchant patterns are positional: the capture stops at connective words
// so "at Dominos via UPI" yields just "Dominos".
var merchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bspent at\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:via|on|using|with|for|ref|txn|upi|avl|bal)\b|[.,;!]|$)`),
	regexp.MustCompile(`(?i)\bupi[:/-]\s*([A-Za-z0-9@][A-Za-z0-9@.&' _-]{2,29}?)(?:\s|[,;!]|$)`),
	regexp.MustCompile(`(?i)\b(?:to|at|from|merchant)\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:via|on|using|with|for|ref|txn|upi|avl|bal)\b|[.,;!]|$)`),
}

var (
	creditPattern = regexp.MustCompile(`(?i)\b(credited|received|refund|cashback)\b`)
	debitPattern  = regexp.MustCompile(`(?i)\b(debited|spent|purchased|paid|withdrawn|deducted|deduction)\b`)

	accountRefPattern = regexp.MustCompile(`(?i)(?:a/c|acct|account)(?:\s*no\.?)?\s*(?:ending\s*)?[xX*]*(\d{3,6})`)
	balancePattern    = regexp.MustCompile(`(?i)\b(?:avl|avbl|available)?\s*bal(?:ance)?\b`)

	thousandsSep = strings.NewReplacer(",", "")
)

// Captures that are message boilerplate, not merchants.
var junkMerchants = map[string]bool{
	"you":          true,
	"your":         true,
	"account":      true,
	"your account": true,
	"your card":    true,
	"a/c":          true,
	"bank":         true,
	"card":         true,
	"the":          true,
}

// Parser extracts candidate transactions from free-form notification text.
type Parser struct {
	classifier *Classifier
}

// NewParser creates a parser backed by the given category classifier.
func NewParser(classifier *Classifier) *Parser {
	return &Parser{classifier: classifier}
}

// Parse extracts a candidate transaction from raw message text. For email
// sources the caller passes the subject and body concatenated. Returns
// common.ErrAmountNotFound or common.ErrInvalidAmount on failure; every
// other field degrades to a default rather than failing.
func (p *Parser) Parse(text string) (*model.Candidate, error) {
	amount, err := extractAmount(text)
	if err != nil {
		return nil, err
	}

	candidate := &model.Candidate{
		Amount:        amount,
		Currency:      "INR",
		Merchant:      extractMerchant(text),
		PaymentMethod: detectPaymentMethod(text),
		AccountRef:    extractAccountRef(text),
		BalanceSeen:   balancePattern.MatchString(text),
	}

	candidate.Type, candidate.Confidence = detectType(text)
	if candidate.HasMerchant() {
		candidate.Confidence += 0.1
	}
	if candidate.PaymentMethod != model.PaymentOther {
		candidate.Confidence += 0.1
	}
	if candidate.Confidence > 1.0 {
		candidate.Confidence = 1.0
	}

	candidate.Category, candidate.SubCategory = p.classifier.Classify(candidate.Merchant, text)

	return candidate, nil
}

// extractAmount finds the first currency-marked or keyword-adjacent number
// and parses it, stripping thousands separators.
func extractAmount(text string) (decimal.Decimal, error) {
	for _, re := range amountPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := thousandsSep.Replace(m[1])
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", common.ErrInvalidAmount, m[1])
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, fmt.Errorf("%w: %s", common.ErrInvalidAmount, amount)
		}
		return amount, nil
	}
	return decimal.Zero, common.ErrAmountNotFound
}

// extractMerchant tries the positional patterns in order, skipping
// boilerplate captures, and falls back to "Unknown".
func extractMerchant(text string) string {
	for _, re := range merchantPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			merchant := cleanMerchant(m[1])
			if merchant == "" {
				continue
			}
			lower := strings.ToLower(merchant)
			if junkMerchants[lower] || strings.HasPrefix(lower, "your ") {
				continue
			}
			return merchant
		}
	}
	return model.UnknownMerchant
}

// cleanMerchant strips trailing punctuation and collapses whitespace.
func cleanMerchant(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;:!-_ ")
	return strings.Join(strings.Fields(s), " ")
}

// detectType scans for credit-style keywords first, then debit-style. When
// neither matches, the candidate defaults to expense with a lower
// confidence so ambiguous messages land in review.
func detectType(text string) (model.TransactionType, float64) {
	if creditPattern.MatchString(text) {
		return model.TypeIncome, 0.8
	}
	if debitPattern.MatchString(text) {
		return model.TypeExpense, 0.8
	}
	return model.TypeExpense, 0.6
}

// Payment method keyword groups, checked in order; first hit wins.
var paymentKeywords = []struct {
	method   model.PaymentMethod
	keywords []string
}{
	{model.PaymentUPI, []string{"upi", "vpa", "gpay", "google pay", "phonepe", "bhim"}},
	{model.PaymentCard, []string{"credit card", "debit card", "card", "visa", "mastercard", "rupay", "amex"}},
	{model.PaymentNetBanking, []string{"netbanking", "net banking", "neft", "rtgs", "imps"}},
	{model.PaymentWallet, []string{"wallet", "paytm", "mobikwik", "freecharge", "amazon pay"}},
	{model.PaymentCash, []string{"cash", "atm"}},
}

func detectPaymentMethod(text string) model.PaymentMethod {
	lower := strings.ToLower(text)
	for _, group := range paymentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(lower, kw) {
				return group.method
			}
		}
	}
	return model.PaymentOther
}

func extractAccountRef(text string) string {
	if m := accountRefPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
