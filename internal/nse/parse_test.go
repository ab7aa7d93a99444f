package nse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rewired-gh/oidelta/internal/models"
)

func TestParseChain_Layouts(t *testing.T) {
	const rows = `[
		{"strikePrice": 24500, "CE": {"openInterest": 1500000, "lastPrice": 125.5}, "PE": {"openInterest": 980000, "lastPrice": 88.2}},
		{"strikePrice": 24550.0, "CE": {"openInterest": null, "lastPrice": null}, "PE": {"openInterest": "1.2L", "lastPrice": "1,204.05"}},
		{"strikePrice": 24600, "CE": {}, "PE": {}},
		{"strikePrice": 24650},
		{"CE": {"openInterest": 5}}
	]`
	want := []models.StrikeObservation{
		{Strike: "24500", CallOI: 1500000, PutOI: 980000, CallLTP: 125.5, PutLTP: 88.2},
		{Strike: "24550", PutOI: 120000, PutLTP: 1204.05},
	}

	tests := []struct {
		name     string
		payload  string
		wantSpot float64
	}{
		{"records", `{"records": {"underlyingValue": 24512.35, "data": ` + rows + `}}`, 24512.35},
		{"data", `{"data": ` + rows + `}`, 0},
		{"filtered", `{"filtered": {"data": ` + rows + `}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, spot := parseChain(gjson.Parse(tt.payload), "")
			assert.Equal(t, want, obs)
			assert.Equal(t, tt.wantSpot, spot)
		})
	}
}

func TestParseChain_SpotFromRecords(t *testing.T) {
	payload := `{"data": [{"strikePrice": 100, "CE": {"openInterest": 1, "underlyingValue": 98.4}}]}`
	obs, spot := parseChain(gjson.Parse(payload), "")
	require.Len(t, obs, 1)
	assert.Equal(t, 98.4, spot)
}

func TestParseChain_FiltersOtherExpiries(t *testing.T) {
	payload := `{"records": {"data": [
		{"strikePrice": 100, "expiryDate": "05-Mar-2026", "CE": {"openInterest": 1}},
		{"strikePrice": 100, "expiryDate": "12-Mar-2026", "CE": {"openInterest": 2}},
		{"strikePrice": 200, "CE": {"openInterest": 3}}
	]}}`
	obs, _ := parseChain(gjson.Parse(payload), "05-Mar-2026")
	require.Len(t, obs, 2)
	assert.Equal(t, int64(1), obs[0].CallOI)
	assert.Equal(t, int64(3), obs[1].CallOI)
}

func TestParseChain_UnknownLayout(t *testing.T) {
	obs, spot := parseChain(gjson.Parse(`{"message": "maintenance"}`), "")
	assert.Empty(t, obs)
	assert.Zero(t, spot)
}

func TestFirstExpiry(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{`["05-Mar-2026", "12-Mar-2026"]`, "05-Mar-2026"},
		{`{"expiryDates": ["12-Mar-2026"]}`, "12-Mar-2026"},
		{`{"expiryDates": []}`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, firstExpiry(gjson.Parse(tt.payload)), tt.payload)
	}
}
