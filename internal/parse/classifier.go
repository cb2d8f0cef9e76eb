package parse

import (
	"strings"

	"github.com/finsift/finsift/internal/model"
)

// CategoryRule maps keywords found in the merchant name or message text to
// a category and optional subcategory.
type CategoryRule struct {
	Category    string
	SubCategory string
	Keywords    []string
}

// defaultRules are checked in order; the first keyword hit wins. Merchant
// text is checked before the full message so a known merchant is not
// shadowed by an incidental keyword in the body.
var defaultRules = []CategoryRule{
	{Category: "Food & Dining", SubCategory: "Restaurants", Keywords: []string{
		"dominos", "pizza", "mcdonald", "kfc", "burger", "restaurant", "cafe", "dhaba", "biryani"}},
	{Category: "Food & Dining", SubCategory: "Delivery", Keywords: []string{
		"swiggy", "zomato", "eatsure", "foodpanda"}},
	{Category: "Groceries", Keywords: []string{
		"bigbasket", "blinkit", "zepto", "grofers", "dmart", "grocery", "supermarket", "kirana"}},
	{Category: "Transport", SubCategory: "Ride Hailing", Keywords: []string{
		"uber", "ola", "rapido"}},
	{Category: "Transport", SubCategory: "Fuel", Keywords: []string{
		"petrol", "diesel", "fuel", "hpcl", "iocl", "bharat petroleum"}},
	{Category: "Transport", SubCategory: "Rail & Metro", Keywords: []string{
		"irctc", "metro", "railway"}},
	{Category: "Shopping", Keywords: []string{
		"amazon", "flipkart", "myntra", "ajio", "meesho", "snapdeal", "nykaa"}},
	{Category: "Entertainment", Keywords: []string{
		"netflix", "hotstar", "spotify", "bookmyshow", "prime video", "sonyliv", "cinema", "pvr"}},
	{Category: "Utilities", Keywords: []string{
		"electricity", "recharge", "airtel", "jio", "vodafone", "broadband", "dth", "tata power", "water bill", "gas bill"}},
	{Category: "Health", Keywords: []string{
		"pharmacy", "apollo", "medplus", "hospital", "clinic", "1mg", "pharmeasy", "diagnostic"}},
	{Category: "Travel", Keywords: []string{
		"makemytrip", "goibibo", "cleartrip", "oyo", "hotel", "flight", "indigo", "airasia", "airways"}},
	{Category: "Rent & Housing", Keywords: []string{
		"rent", "maintenance", "society", "nobroker"}},
	{Category: "Income", SubCategory: "Salary", Keywords: []string{
		"salary", "payroll", "stipend"}},
	{Category: "Income", SubCategory: "Refunds", Keywords: []string{
		"refund", "cashback", "reversal"}},
}

// Classifier assigns categories from keyword rules.
type Classifier struct {
	rules []CategoryRule
}

// NewClassifier creates a classifier with the built-in rule set.
func NewClassifier() *Classifier {
	return &Classifier{rules: defaultRules}
}

// NewClassifierWithRules creates a classifier with custom rules tried
// before the built-in ones.
func NewClassifierWithRules(rules []CategoryRule) *Classifier {
	return &Classifier{rules: append(rules, defaultRules...)}
}

// Classify returns the category and subcategory for the first rule whose
// keyword appears in the merchant name, then the message text. Falls back
// to the default category with no subcategory.
func (c *Classifier) Classify(merchant, text string) (string, string) {
	merchantLower := strings.ToLower(merchant)
	textLower := strings.ToLower(text)

	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(merchantLower, kw) {
				return rule.Category, rule.SubCategory
			}
		}
	}
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(textLower, kw) {
				return rule.Category, rule.SubCategory
			}
		}
	}
	return model.DefaultCategory, ""
}
