package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// CurrencySymbol is the display prefix for Rupiah amounts.
const CurrencySymbol = "Rp"

// commaGrouped matches amounts written with "," thousand separators only, e.g. "12,500".
var commaGrouped = regexp.MustCompile(`^\d{1,3}(,\d{3})+$`)

// idPrinter formats numbers with Indonesian grouping ("." thousands, "," decimals).
var idPrinter = message.NewPrinter(language.Indonesian)

// FormatThousand renders n with "." thousand separators, e.g. 1000000 -> "1.000.000".
// Fractional parts are kept up to two digits after a "," decimal mark.
func FormatThousand(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	return idPrinter.Sprint(number.Decimal(n, number.MaxFractionDigits(2)))
}

// FormatCurrency renders an IDR amount without decimals, e.g. 8000000 -> "Rp 8.000.000".
func FormatCurrency(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	rounded := math.Round(amount)
	if rounded < 0 {
		return "-" + CurrencySymbol + " " + FormatThousand(-rounded)
	}
	return CurrencySymbol + " " + FormatThousand(rounded)
}

// ParseNumber is the inverse of FormatThousand. It accepts an optional "Rp"
// prefix, "." thousand separators and "," as decimal mark. An empty string is 0.
// A string grouped only by "," in threes ("12,500") is read as whole Rupiah.
func ParseNumber(s string) (float64, error) {
	clean := strings.TrimSpace(s)
	negative := strings.HasPrefix(clean, "-")
	clean = strings.TrimPrefix(clean, "-")

	if len(clean) >= 2 && strings.EqualFold(clean[:2], CurrencySymbol) {
		clean = clean[2:]
	}
	clean = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, clean)
	if commaGrouped.MatchString(clean) {
		clean = strings.ReplaceAll(clean, ",", "")
	}
	clean = strings.Map(func(r rune) rune {
		switch r {
		case '.':
			return -1
		case ',':
			return '.'
		}
		return r
	}, clean)

	if clean == "" {
		return 0, nil
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if negative {
		v = -v
	}
	return v, nil
}
