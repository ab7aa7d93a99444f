package nse

import (
	"github.com/tidwall/gjson"

	"github.com/rewired-gh/oidelta/internal/format"
	"github.com/rewired-gh/oidelta/internal/logger"
	"github.com/rewired-gh/oidelta/internal/models"
)

// firstExpiry reads the nearest expiry from a contract-info payload, which is
// either a bare list of dates or an object with an expiryDates list.
func firstExpiry(payload gjson.Result) string {
	if payload.IsArray() {
		return payload.Get("0").String()
	}
	return payload.Get("expiryDates.0").String()
}

// chainRows locates the per-strike records in any of the payload layouts the
// API has served.
func chainRows(payload gjson.Result) gjson.Result {
	for _, path := range []string{"records.data", "data", "filtered.data"} {
		if rows := payload.Get(path); rows.IsArray() {
			return rows
		}
	}
	return gjson.Result{}
}

// parseChain converts a chain payload into observations and the underlying
// spot price. Records without either side are dropped; when records carry an
// expiry date, those for other expiries are dropped too.
func parseChain(payload gjson.Result, expiry string) ([]models.StrikeObservation, float64) {
	spot := payload.Get("records.underlyingValue").Float()

	var obs []models.StrikeObservation
	chainRows(payload).ForEach(func(_, item gjson.Result) bool {
		strike := item.Get("strikePrice")
		if !strike.Exists() || strike.Type == gjson.Null {
			logger.Debug("Dropping record without strike: %.80s", item.Raw)
			return true
		}
		if exp := item.Get("expiryDate").String(); exp != "" && expiry != "" && exp != expiry {
			return true
		}

		ce, pe := item.Get("CE"), item.Get("PE")
		if !hasSide(ce) && !hasSide(pe) {
			return true
		}
		if spot == 0 {
			spot = firstNonZero(ce.Get("underlyingValue"), pe.Get("underlyingValue"))
		}

		obs = append(obs, models.StrikeObservation{
			Strike:  strike.String(),
			CallOI:  count(ce.Get("openInterest")),
			PutOI:   count(pe.Get("openInterest")),
			CallLTP: number(ce.Get("lastPrice")),
			PutLTP:  number(pe.Get("lastPrice")),
		})
		return true
	})
	return obs, spot
}

func hasSide(r gjson.Result) bool {
	return r.IsObject() && len(r.Map()) > 0
}

// number reads a numeric field that may be null, missing or a formatted string.
func number(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		return format.ParseNumber(r.Str)
	}
	return 0
}

func count(r gjson.Result) int64 {
	switch r.Type {
	case gjson.Number:
		return int64(r.Float())
	case gjson.String:
		return format.ParseCount(r.Str)
	}
	return 0
}

func firstNonZero(rs ...gjson.Result) float64 {
	for _, r := range rs {
		if v := number(r); v != 0 {
			return v
		}
	}
	return 0
}
