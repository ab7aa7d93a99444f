// Package report renders per-side option chain tables as Telegram MarkdownV2
// messages.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/oidelta/internal/delta"
	"github.com/rewired-gh/oidelta/internal/format"
	"github.com/rewired-gh/oidelta/internal/models"
)

// Selection chooses which rows make it into a report.
type Selection string

const (
	// ByMagnitude keeps the rows with the largest absolute OI change, shown in
	// strike order.
	ByMagnitude Selection = "magnitude"
	// ByStrike keeps the lowest strikes in ascending order.
	ByStrike Selection = "strike"
)

// ParseSelection maps a configuration value to a Selection.
func ParseSelection(s string) (Selection, error) {
	switch Selection(strings.ToLower(strings.TrimSpace(s))) {
	case "", ByMagnitude:
		return ByMagnitude, nil
	case ByStrike:
		return ByStrike, nil
	}
	return "", fmt.Errorf("unknown selection %q (want %q or %q)", s, ByMagnitude, ByStrike)
}

// Options configures an Assembler.
type Options struct {
	Symbol    string
	Source    string
	ATMRange  float64
	ATMMarker float64
	Selection Selection
	Location  *time.Location
	Now       func() time.Time
	Expiry    string
}

// Assembler turns delta rows into report text.
type Assembler struct {
	opts Options
}

// NewAssembler creates an Assembler, filling unset options with defaults.
func NewAssembler(opts Options) *Assembler {
	if opts.Symbol == "" {
		opts.Symbol = "NIFTY"
	}
	if opts.Selection == "" {
		opts.Selection = ByMagnitude
	}
	if opts.Location == nil {
		if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
			opts.Location = loc
		} else {
			opts.Location = time.UTC
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Assembler{opts: opts}
}

// ForExpiry returns a copy of the assembler that prints the given expiry in
// the header.
func (a *Assembler) ForExpiry(expiry string) *Assembler {
	opts := a.opts
	opts.Expiry = expiry
	return &Assembler{opts: opts}
}

// Assemble selects up to topN rows for side and renders them. A non-positive
// topN keeps every row; a non-positive spot disables the ATM band and marker.
func (a *Assembler) Assemble(rows []delta.Row, side models.Side, spot float64, topN int) string {
	selected := a.selectRows(a.filterATM(rows, spot), side, topN)
	atm := a.atmStrike(selected, spot)

	var b strings.Builder
	a.writeHeader(&b, side, spot)

	b.WriteString("```\n")
	b.WriteString(format.EscapeCode(fmt.Sprintf("%7s | %8s | %8s | %s\n", "Strike", "OI", "ΔOI", "LTP (ΔLTP)")))
	b.WriteString(format.EscapeCode("--------|----------|----------|----------------\n"))
	for _, r := range selected {
		strike := r.Strike
		if atm != "" && r.Strike == atm {
			strike += "*"
		}
		line := fmt.Sprintf("%7s | %8s | %8s | %7s (%s)\n",
			strike, r.OIText(side), r.OIDeltaText(side), format.FormatLTP(r.LTP(side)), r.LTPDeltaText(side))
		b.WriteString(format.EscapeCode(line))
	}
	b.WriteString("```\n")

	a.writeFooter(&b, len(selected), topN, spot)
	return b.String()
}

func (a *Assembler) writeHeader(b *strings.Builder, side models.Side, spot float64) {
	icon := "📈"
	if side == models.Put {
		icon = "📉"
	}
	title := fmt.Sprintf("%s %s Options (%s)", a.opts.Symbol, side.Label(), side.Code())
	fmt.Fprintf(b, "%s *%s*\n", icon, format.EscapeMarkdownV2(title))

	now := a.opts.Now().In(a.opts.Location)
	fmt.Fprintf(b, "🕒 %s\n", format.EscapeMarkdownV2(now.Format("2006-01-02 15:04 MST")))
	if a.opts.Expiry != "" {
		fmt.Fprintf(b, "📅 Expiry: %s\n", format.EscapeMarkdownV2(a.opts.Expiry))
	}
	if spot > 0 {
		fmt.Fprintf(b, "🎯 Spot: %s\n", format.EscapeMarkdownV2(format.FormatPlain(spot)))
	}
	b.WriteString("\n")
}

func (a *Assembler) writeFooter(b *strings.Builder, shown, topN int, spot float64) {
	var caption string
	switch {
	case a.opts.Selection == ByStrike:
		caption = fmt.Sprintf("%d strikes by price", shown)
	case topN > 0:
		caption = fmt.Sprintf("Top %d by OI change", topN)
	default:
		caption = "All strikes by OI change"
	}
	fmt.Fprintf(b, "🔹 *%s*\n", format.EscapeMarkdownV2(caption))

	var notes []string
	if a.opts.Source != "" {
		notes = append(notes, "Source: "+a.opts.Source)
	}
	if spot > 0 && a.opts.ATMRange > 0 {
		notes = append(notes, "ATM ±"+format.FormatMagnitude(a.opts.ATMRange))
	}
	if len(notes) > 0 {
		fmt.Fprintf(b, "📊 %s", format.EscapeMarkdownV2(strings.Join(notes, " · ")))
	}
}

func (a *Assembler) filterATM(rows []delta.Row, spot float64) []delta.Row {
	if spot <= 0 || a.opts.ATMRange <= 0 {
		return rows
	}
	center := decimal.NewFromFloat(spot)
	band := decimal.NewFromFloat(a.opts.ATMRange)
	kept := make([]delta.Row, 0, len(rows))
	for _, r := range rows {
		if r.StrikeValue.Sub(center).Abs().LessThanOrEqual(band) {
			kept = append(kept, r)
		}
	}
	return kept
}

func (a *Assembler) selectRows(rows []delta.Row, side models.Side, topN int) []delta.Row {
	out := make([]delta.Row, len(rows))
	copy(out, rows)

	if a.opts.Selection == ByMagnitude {
		sort.SliceStable(out, func(i, j int) bool {
			di, dj := abs(out[i].OIDelta(side)), abs(out[j].OIDelta(side))
			if di != dj {
				return di > dj
			}
			return out[i].StrikeValue.LessThan(out[j].StrikeValue)
		})
		if topN > 0 && len(out) > topN {
			out = out[:topN]
		}
		sortByStrike(out)
		return out
	}

	sortByStrike(out)
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// atmStrike returns the strike closest to spot when it lies within the marker
// distance.
func (a *Assembler) atmStrike(rows []delta.Row, spot float64) string {
	if spot <= 0 || a.opts.ATMMarker <= 0 || len(rows) == 0 {
		return ""
	}
	center := decimal.NewFromFloat(spot)
	best := -1
	var bestDist decimal.Decimal
	for i, r := range rows {
		d := r.StrikeValue.Sub(center).Abs()
		if best < 0 || d.LessThan(bestDist) {
			best, bestDist = i, d
		}
	}
	if bestDist.GreaterThan(decimal.NewFromFloat(a.opts.ATMMarker)) {
		return ""
	}
	return rows[best].Strike
}

func sortByStrike(rows []delta.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].StrikeValue.LessThan(rows[j].StrikeValue)
	})
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
