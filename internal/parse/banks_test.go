package parse

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsift/finsift/internal/model"
)

func newTestRegistry() *BankRegistry {
	return NewBankRegistry(NewClassifier())
}

func TestBankRegistryMatch(t *testing.T) {
	registry := newTestRegistry()

	tests := []struct {
		name   string
		sender string
		want   string
	}{
		{"known domain", "alerts@hdfcbank.net", "HDFC Bank"},
		{"subdomain of known domain", "noreply@alerts.hdfcbank.net", "HDFC Bank"},
		{"bare domain", "icicibank.com", "ICICI Bank"},
		{"unknown sender", "friend@example.com", ""},
		{"sms short code", "VM-HDFCBK", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := registry.Match(tt.sender)
			if tt.want == "" {
				assert.Nil(t, profile)
				return
			}
			require.NotNil(t, profile)
			assert.Equal(t, tt.want, profile.Name)
		})
	}
}

func TestBankParseHDFCDebit(t *testing.T) {
	registry := newTestRegistry()
	profile := registry.Match("alerts@hdfcbank.net")
	require.NotNil(t, profile)

	candidate, err := registry.Parse(profile,
		"Rs.450.00 has been debited from A/c XX5678 to VPA dominos@ybl Dominos Pizza on 12-03-25")
	require.NoError(t, err)

	assert.True(t, candidate.Amount.Equal(decimal.RequireFromString("450.00")))
	assert.Equal(t, "Dominos Pizza", candidate.Merchant)
	assert.Equal(t, model.TypeExpense, candidate.Type)
	assert.Equal(t, "5678", candidate.AccountRef)
	assert.Equal(t, "Food & Dining", candidate.Category)
}

func TestBankParseCreditBeatsDebitKeywords(t *testing.T) {
	registry := newTestRegistry()
	profile := registry.Match("alerts@hdfcbank.net")
	require.NotNil(t, profile)

	candidate, err := registry.Parse(profile, "Rs.1,200 credited to your account as refund")
	require.NoError(t, err)

	assert.True(t, candidate.Amount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, model.TypeIncome, candidate.Type)
}

func TestBankParseFallsBackToGenericExtractors(t *testing.T) {
	registry := newTestRegistry()
	profile := registry.Match("paytm.com")
	require.NotNil(t, profile)

	// No "paid to" phrasing; the generic merchant patterns take over.
	candidate, err := registry.Parse(profile, "₹180 spent at Swiggy via wallet")
	require.NoError(t, err)

	assert.True(t, candidate.Amount.Equal(decimal.NewFromInt(180)))
	assert.Equal(t, "Swiggy", candidate.Merchant)
	assert.Equal(t, model.PaymentWallet, candidate.PaymentMethod)
}

func TestExtractGPS(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *model.GeoPoint
	}{
		{
			name: "labelled pair",
			text: "Transaction at store. lat: 12.9716, lng: 77.5946",
			want: &model.GeoPoint{Lat: 12.9716, Lng: 77.5946},
		},
		{
			name: "longitude spelled out",
			text: "latitude=28.6139 longitude=77.2090",
			want: &model.GeoPoint{Lat: 28.6139, Lng: 77.209},
		},
		{
			name: "out of range rejected",
			text: "lat: 95.0, lng: 77.5946",
			want: nil,
		},
		{
			name: "no coordinates",
			text: "Rs.100 debited at store",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractGPS(tt.text)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
			assert.InDelta(t, tt.want.Lng, got.Lng, 1e-9)
		})
	}
}

func TestSenderDomain(t *testing.T) {
	assert.Equal(t, "hdfcbank.net", senderDomain("Alerts <alerts@hdfcbank.net"))
	assert.Equal(t, "sbi.co.in", senderDomain("SBI.CO.IN"))
	assert.Equal(t, "", senderDomain("AX-PAYTM"))
}
