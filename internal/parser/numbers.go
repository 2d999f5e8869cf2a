package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reAmountToken = regexp.MustCompile(`^-?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?$`)
	currencyRepl  = strings.NewReplacer("£", "", "$", "", "€", "", "GBP", "", "EUR", "", "USD", "")
)

// cleanAmount strips currency markers, thousands separators and accounting
// parentheses so the remainder can be handed to decimal.
func cleanAmount(tok string) string {
	s := strings.TrimSpace(tok)
	s = strings.TrimRight(s, ",;:")
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = currencyRepl.Replace(s)
	s = strings.TrimSpace(s)
	if neg && s != "" && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}

// isAmountToken reports whether a whitespace-separated token is a number,
// allowing currency symbols and thousands separators.
func isAmountToken(tok string) bool {
	s := cleanAmount(tok)
	return s != "" && reAmountToken.MatchString(s)
}

// isWholeToken reports whether an amount token carries no fractional part.
func isWholeToken(tok string) bool {
	s := strings.ReplaceAll(cleanAmount(tok), ",", "")
	if !strings.Contains(s, ".") {
		return true
	}
	d, err := decimal.NewFromString(s)
	return err == nil && d.Equal(d.Truncate(0))
}

// parseAmountDecimal converts a token leniently; anything unparseable is zero.
func parseAmountDecimal(tok string) decimal.Decimal {
	s := strings.ReplaceAll(cleanAmount(tok), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseAmount(tok string) float64 {
	f, _ := parseAmountDecimal(tok).Float64()
	return f
}

// lastAmount returns the right-most numeric token on a line.
func lastAmount(line string) (float64, bool) {
	toks := strings.Fields(line)
	for i := len(toks) - 1; i >= 0; i-- {
		if isAmountToken(toks[i]) {
			return parseAmount(toks[i]), true
		}
	}
	return 0, false
}
