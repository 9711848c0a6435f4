package providers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// defaultRatePer1K applies to models missing from pricePer1K.
var defaultRatePer1K = decimal.RequireFromString("0.01")

var thousand = decimal.NewFromInt(1000)

// pricePer1K holds blended USD prices per 1K tokens for a few well-known
// model families, matched by prefix. It is deliberately coarse.
var pricePer1K = []struct {
	prefix string
	rate   decimal.Decimal
}{
	{"gpt-4o-mini", decimal.RequireFromString("0.0004")},
	{"gpt-4o", decimal.RequireFromString("0.005")},
	{"gpt-4", decimal.RequireFromString("0.03")},
	{"gpt-3.5", decimal.RequireFromString("0.001")},
	{"claude-3-5-haiku", decimal.RequireFromString("0.002")},
	{"claude-3-5-sonnet", decimal.RequireFromString("0.009")},
	{"claude-3-opus", decimal.RequireFromString("0.045")},
	{"gemini-1.5-flash", decimal.RequireFromString("0.0002")},
	{"gemini-1.5-pro", decimal.RequireFromString("0.003")},
	{"grok", decimal.RequireFromString("0.01")},
	{"deepseek", decimal.RequireFromString("0.0005")},
}

// EstimateCost approximates the USD cost of tokens for model. Token counts are
// themselves word-count estimates, so the result is a rough hint and never a
// billing figure.
func EstimateCost(model string, tokens int) decimal.Decimal {
	if tokens <= 0 {
		return decimal.Zero
	}
	rate := defaultRatePer1K
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, p := range pricePer1K {
		if strings.HasPrefix(m, p.prefix) {
			rate = p.rate
			break
		}
	}
	return decimal.NewFromInt(int64(tokens)).Mul(rate).Div(thousand)
}
