package parse

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
)

// BankProfile holds sender-domain-specific extraction rules that take
// priority over the generic parser.
type BankProfile struct {
	Name             string
	Domains          []string
	AmountPatterns   []*regexp.Regexp
	MerchantPatterns []*regexp.Regexp
	CreditKeywords   []string
	DebitKeywords    []string
}

// gpsPattern matches literal coordinate pairs some bank emails embed.
var gpsPattern = regexp.MustCompile(`(?i)\blat(?:itude)?[:= ]\s*(-?\d{1,3}\.\d+)\s*[,;]?\s*(?:lon|lng|long)(?:itude)?[:= ]\s*(-?\d{1,3}\.\d+)`)

// ExtractGPS returns literal coordinates embedded in the message, if any.
func ExtractGPS(text string) *model.GeoPoint {
	m := gpsPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	lat, err1 := decimal.NewFromString(m[1])
	lng, err2 := decimal.NewFromString(m[2])
	if err1 != nil || err2 != nil {
		return nil
	}
	latF, _ := lat.Float64()
	lngF, _ := lng.Float64()
	if latF < -90 || latF > 90 || lngF < -180 || lngF > 180 {
		return nil
	}
	return &model.GeoPoint{Lat: latF, Lng: lngF}
}

var defaultProfiles = []*BankProfile{
	{
		Name:    "HDFC Bank",
		Domains: []string{"hdfcbank.net", "hdfcbank.com"},
		AmountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)\s+(?:has been\s+)?(?:debited|credited)`),
			regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
		},
		MerchantPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bto\s+VPA\s+\S+\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+on\b|[.,;]|$)`),
			regexp.MustCompile(`(?i)\b(?:at|to|towards)\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:on|via|using)\b|[.,;]|$)`),
		},
		CreditKeywords: []string{"credited", "received", "refund"},
		DebitKeywords:  []string{"debited", "spent", "withdrawn"},
	},
	{
		Name:    "ICICI Bank",
		Domains: []string{"icicibank.com"},
		AmountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
		},
		MerchantPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bInfo[:.]\s*([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:[.,;]|$)`),
			regexp.MustCompile(`(?i)\b(?:at|to)\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:on|via)\b|[.,;]|$)`),
		},
		CreditKeywords: []string{"credited", "received"},
		DebitKeywords:  []string{"debited", "spent"},
	},
	{
		Name:    "State Bank of India",
		Domains: []string{"sbi.co.in", "alerts.sbi.co.in", "onlinesbi.com"},
		AmountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
		},
		MerchantPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\btrf to\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+Refno\b|[.,;]|$)`),
			regexp.MustCompile(`(?i)\b(?:at|to)\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:on|via)\b|[.,;]|$)`),
		},
		CreditKeywords: []string{"credited", "deposit"},
		DebitKeywords:  []string{"debited", "withdrawn", "trf"},
	},
	{
		Name:    "Axis Bank",
		Domains: []string{"axisbank.com"},
		AmountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
		},
		MerchantPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:at|to)\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:on|via)\b|[.,;]|$)`),
		},
		CreditKeywords: []string{"credited"},
		DebitKeywords:  []string{"debited", "spent"},
	},
	{
		Name:    "Paytm",
		Domains: []string{"paytm.com", "paytmbank.com"},
		AmountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:rs\.?|₹|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
		},
		MerchantPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bpaid to\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:on|via)\b|[.,;]|$)`),
		},
		CreditKeywords: []string{"received", "cashback", "refund"},
		DebitKeywords:  []string{"paid", "sent"},
	},
	{
		Name:    "PhonePe",
		Domains: []string{"phonepe.com"},
		AmountPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:rs\.?|₹|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
		},
		MerchantPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(?:paid to|sent to)\s+([A-Za-z0-9][A-Za-z0-9&.' _-]{2,29}?)(?:\s+(?:on|via)\b|[.,;]|$)`),
		},
		CreditKeywords: []string{"received", "refund"},
		DebitKeywords:  []string{"paid", "sent"},
	},
}

// BankRegistry maps sender email domains to bank-specific parse rules.
type BankRegistry struct {
	classifier *Classifier
	byDomain   map[string]*BankProfile
}

// NewBankRegistry creates a registry with the built-in bank table.
func NewBankRegistry(classifier *Classifier) *BankRegistry {
	r := &BankRegistry{
		classifier: classifier,
		byDomain:   make(map[string]*BankProfile),
	}
	for _, p := range defaultProfiles {
		for _, d := range p.Domains {
			r.byDomain[d] = p
		}
	}
	return r
}

// Match returns the profile for the sender's domain, or nil when the
// sender is not a known bank, signaling fallback to the generic parser.
func (r *BankRegistry) Match(sender string) *BankProfile {
	domain := senderDomain(sender)
	if domain == "" {
		return nil
	}
	if p, ok := r.byDomain[domain]; ok {
		return p
	}
	// Subdomains match their parent, e.g. alerts.hdfcbank.net.
	for d, p := range r.byDomain {
		if strings.HasSuffix(domain, "."+d) {
			return p
		}
	}
	return nil
}

// Parse runs the profile's rules against the message. Rule misses fall
// back to the generic extractors so a known bank never parses worse than
// an unknown one.
func (r *BankRegistry) Parse(profile *BankProfile, text string) (*model.Candidate, error) {
	amount, err := profileAmount(profile, text)
	if err != nil {
		return nil, err
	}

	candidate := &model.Candidate{
		Amount:        amount,
		Currency:      "INR",
		Merchant:      profileMerchant(profile, text),
		PaymentMethod: detectPaymentMethod(text),
		AccountRef:    extractAccountRef(text),
		BalanceSeen:   balancePattern.MatchString(text),
		GPS:           ExtractGPS(text),
	}

	candidate.Type, candidate.Confidence = profileType(profile, text)
	if candidate.HasMerchant() {
		candidate.Confidence += 0.1
	}
	if candidate.Confidence > 1.0 {
		candidate.Confidence = 1.0
	}

	candidate.Category, candidate.SubCategory = r.classifier.Classify(candidate.Merchant, text)

	return candidate, nil
}

func profileAmount(profile *BankProfile, text string) (decimal.Decimal, error) {
	for _, re := range profile.AmountPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := decimal.NewFromString(thousandsSep.Replace(m[1]))
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, common.ErrInvalidAmount
		}
		return amount, nil
	}
	return extractAmount(text)
}

func profileMerchant(profile *BankProfile, text string) string {
	for _, re := range profile.MerchantPatterns {
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
	return extractMerchant(text)
}

func profileType(profile *BankProfile, text string) (model.TransactionType, float64) {
	lower := strings.ToLower(text)
	for _, kw := range profile.CreditKeywords {
		if strings.Contains(lower, kw) {
			return model.TypeIncome, 0.9
		}
	}
	for _, kw := range profile.DebitKeywords {
		if strings.Contains(lower, kw) {
			return model.TypeExpense, 0.9
		}
	}
	return detectType(text)
}

// senderDomain extracts the domain from an email address or returns the
// input lowered when it already looks like a bare domain.
func senderDomain(sender string) string {
	sender = strings.ToLower(strings.TrimSpace(sender))
	if sender == "" {
		return ""
	}
	if i := strings.LastIndex(sender, "@"); i >= 0 {
		return strings.Trim(sender[i+1:], "<> ")
	}
	if strings.Contains(sender, ".") {
		return sender
	}
	return ""
}
