package report

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/oidelta/internal/delta"
	"github.com/rewired-gh/oidelta/internal/models"
)

var fixedNow = func() time.Time {
	return time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC)
}

func rowsFor(t *testing.T, obs []models.StrikeObservation, prev models.Snapshot) []delta.Row {
	t.Helper()
	batch := delta.Compute(obs, prev)
	require.Empty(t, batch.Skipped())
	return batch.Rows()
}

// tableStrikes returns the strike column of the rendered table, in order.
func tableStrikes(text string) []string {
	var strikes []string
	inTable := false
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "```") {
			inTable = !inTable
			continue
		}
		if !inTable || strings.Contains(line, "Strike") || strings.HasPrefix(line, "---") {
			continue
		}
		strikes = append(strikes, strings.TrimSpace(strings.SplitN(line, "|", 2)[0]))
	}
	return strikes
}

func TestAssemble_EmptyInput(t *testing.T) {
	a := NewAssembler(Options{Source: "NSE India", Now: fixedNow})

	for _, side := range []models.Side{models.Call, models.Put} {
		text := a.Assemble(nil, side, 0, 15)
		assert.Contains(t, text, "NIFTY "+side.Label())
		assert.Contains(t, text, "Strike")
		assert.Contains(t, text, "Top 15 by OI change")
		assert.Equal(t, 2, strings.Count(text, "```"))
		assert.Empty(t, tableStrikes(text))
	}
}

func TestAssemble_HeaderUsesLocation(t *testing.T) {
	a := NewAssembler(Options{Now: fixedNow}).ForExpiry("05-Mar-2026")
	text := a.Assemble(nil, models.Call, 24512.35, 5)

	assert.Contains(t, text, "2026\\-03\\-02 09:30 IST")
	assert.Contains(t, text, "Expiry: 05\\-Mar\\-2026")
	assert.Contains(t, text, "Spot: 24,512\\.35")
	assert.True(t, strings.HasPrefix(text, "📈 *NIFTY Call Options \\(CE\\)*"))

	put := a.Assemble(nil, models.Put, 0, 5)
	assert.True(t, strings.HasPrefix(put, "📉 *NIFTY Put Options \\(PE\\)*"))
	assert.NotContains(t, put, "Spot:")
}

func TestAssemble_SelectionModes(t *testing.T) {
	obs := []models.StrikeObservation{
		{Strike: "24300", CallOI: 100, PutOI: 1},
		{Strike: "24400", CallOI: 9000, PutOI: 2},
		{Strike: "24500", CallOI: 500, PutOI: 3},
		{Strike: "24600", CallOI: 7000, PutOI: 4},
		{Strike: "24700", CallOI: 50, PutOI: 5},
	}
	rows := rowsFor(t, obs, nil)

	tests := []struct {
		name      string
		selection Selection
		side      models.Side
		topN      int
		want      []string
	}{
		{"magnitude top 3 shown by strike", ByMagnitude, models.Call, 3, []string{"24400", "24500", "24600"}},
		{"magnitude uses side", ByMagnitude, models.Put, 2, []string{"24600", "24700"}},
		{"strike order", ByStrike, models.Call, 2, []string{"24300", "24400"}},
		{"non-positive topN keeps all", ByStrike, models.Call, 0, []string{"24300", "24400", "24500", "24600", "24700"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(Options{Selection: tt.selection, Now: fixedNow})
			assert.Equal(t, tt.want, tableStrikes(a.Assemble(rows, tt.side, 0, tt.topN)))
		})
	}
}

func TestAssemble_MagnitudeTieBreaksOnStrike(t *testing.T) {
	rows := rowsFor(t, []models.StrikeObservation{
		{Strike: "24600", CallOI: 10},
		{Strike: "24400", CallOI: 10},
		{Strike: "24500", CallOI: 10},
	}, nil)
	a := NewAssembler(Options{Now: fixedNow})
	assert.Equal(t, []string{"24400", "24500"}, tableStrikes(a.Assemble(rows, models.Call, 0, 2)))
}

func TestAssemble_ATMBandAndMarker(t *testing.T) {
	var obs []models.StrikeObservation
	for s := 24000; s <= 25000; s += 100 {
		obs = append(obs, models.StrikeObservation{Strike: strconv.Itoa(s), CallOI: int64(s)})
	}
	rows := rowsFor(t, obs, nil)

	a := NewAssembler(Options{ATMRange: 200, ATMMarker: 50, Selection: ByStrike, Now: fixedNow})
	text := a.Assemble(rows, models.Call, 24480, 0)
	assert.Equal(t, []string{"24300", "24400", "24500*", "24600"}, tableStrikes(text))
	assert.Contains(t, text, "ATM ±200")

	narrow := NewAssembler(Options{ATMRange: 200, ATMMarker: 20, Selection: ByStrike, Now: fixedNow})
	text = narrow.Assemble(rows, models.Call, 24450, 0)
	assert.NotContains(t, strings.Join(tableStrikes(text), ","), "*")

	// No spot: no band, no marker.
	assert.Len(t, tableStrikes(a.Assemble(rows, models.Call, 0, 0)), len(obs))
}

func TestAssemble_RowContent(t *testing.T) {
	rows := rowsFor(t, []models.StrikeObservation{
		{Strike: "18000", CallOI: 1500000, CallLTP: 125.5},
	}, models.Snapshot{"18000": {CallOI: 1200000, CallLTP: 120}})

	text := NewAssembler(Options{Now: fixedNow}).Assemble(rows, models.Call, 0, 15)
	assert.Contains(t, text, "  18000 |   15.00L |   +3.00L |  125.50 (+5.50)")

	put := NewAssembler(Options{Now: fixedNow}).Assemble(rows, models.Put, 0, 15)
	assert.Contains(t, put, "  18000 |        0 |       +0 |       - (+0.00)")
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		in      string
		want    Selection
		wantErr bool
	}{
		{"", ByMagnitude, false},
		{"magnitude", ByMagnitude, false},
		{" Strike ", ByStrike, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSelection(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
