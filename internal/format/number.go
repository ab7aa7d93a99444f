// Package format converts raw open-interest and price values into the compact
// text used in reports, and parses the loosely formatted numbers sources return.
package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	crore = 1e7
	lakh  = 1e5
	kilo  = 1e3
)

// FormatMagnitude renders |n| in Indian compact notation (K, L, Cr) with two
// decimals. Values below one thousand print as a whole number when they have no
// fractional part. The sign is never included.
func FormatMagnitude(n float64) string {
	a := math.Abs(finite(n))
	switch {
	case a >= crore:
		return fmt.Sprintf("%.2fCr", a/crore)
	case a >= lakh:
		return fmt.Sprintf("%.2fL", a/lakh)
	case a >= kilo:
		return fmt.Sprintf("%.2fK", a/kilo)
	case a == math.Trunc(a):
		return strconv.FormatInt(int64(a), 10)
	default:
		return fmt.Sprintf("%.2f", a)
	}
}

// FormatSignedDelta renders a change with an explicit "+" or "-" prefix.
// Integer deltas (open interest) use the compact magnitude and are truncated to
// a whole number below one thousand. Price deltas always use two decimals and
// never take a suffix.
func FormatSignedDelta(n float64, isInteger bool) string {
	n = finite(n)
	sign := "+"
	if n < 0 {
		sign = "-"
	}
	a := math.Abs(n)
	if !isInteger {
		return sign + decimal.NewFromFloat(a).StringFixed(2)
	}
	if a >= kilo {
		return sign + FormatMagnitude(a)
	}
	return sign + strconv.FormatInt(int64(a), 10)
}

// FormatLTP renders a last traded price; zero means the contract did not trade.
func FormatLTP(p float64) string {
	if p == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatPlain renders n with thousands separators and two decimals.
func FormatPlain(n float64) string {
	return humanize.FormatFloat("#,###.##", finite(n))
}

// PriceDelta returns cur-prev computed in decimal so display rounding is not
// affected by binary float noise.
func PriceDelta(cur, prev float64) float64 {
	d := decimal.NewFromFloat(finite(cur)).Sub(decimal.NewFromFloat(finite(prev)))
	return d.InexactFloat64()
}

// ParseNumber parses a loosely formatted number. Commas are ignored; if the
// text still does not parse, every character except digits, '.' and '-' is
// dropped and parsing is retried. Anything unusable yields 0.
func ParseNumber(s string) float64 {
	t := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	switch t {
	case "", "-", "--":
		return 0
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		return finite(f)
	}
	var b strings.Builder
	for _, r := range t {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

// ParseCount parses an open-interest figure that may carry a K, L or Cr suffix
// ("4.5K", "1.2L", "3Cr") or thousands separators.
func ParseCount(s string) int64 {
	t := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	mult := int64(0)
	switch {
	case strings.HasSuffix(t, "CR"):
		mult, t = crore, strings.TrimSuffix(t, "CR")
	case strings.HasSuffix(t, "L"):
		mult, t = lakh, strings.TrimSuffix(t, "L")
	case strings.HasSuffix(t, "K"):
		mult, t = kilo, strings.TrimSuffix(t, "K")
	}
	if mult > 0 {
		if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			return d.Mul(decimal.NewFromInt(mult)).IntPart()
		}
	}
	return int64(ParseNumber(t))
}

var errEmptyStrike = errors.New("empty strike")

// StrikeValue parses a strike identifier as an exact decimal.
func StrikeValue(s string) (decimal.Decimal, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return decimal.Zero, errEmptyStrike
	}
	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid strike %q: %w", s, err)
	}
	return d, nil
}

// CanonicalStrike normalizes a strike identifier so "24500", "24500.0" and
// "24500.00" share one key.
func CanonicalStrike(s string) (string, error) {
	d, err := StrikeValue(s)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
