// Package delta computes per-strike changes in open interest and last traded
// price between the current cycle and the previous persisted snapshot.
package delta

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/oidelta/internal/format"
	"github.com/rewired-gh/oidelta/internal/logger"
	"github.com/rewired-gh/oidelta/internal/models"
)

// Row is a strike observation enriched with raw and formatted deltas.
type Row struct {
	models.StrikeObservation

	StrikeValue decimal.Decimal

	CallOIDelta  int64
	PutOIDelta   int64
	CallLTPDelta float64
	PutLTPDelta  float64

	CallOIText       string
	PutOIText        string
	CallOIDeltaText  string
	PutOIDeltaText   string
	CallLTPDeltaText string
	PutLTPDeltaText  string
}

// OIDelta returns the open-interest change of the given side.
func (r Row) OIDelta(side models.Side) int64 {
	if side == models.Put {
		return r.PutOIDelta
	}
	return r.CallOIDelta
}

// OIText returns the compact current open interest of the given side.
func (r Row) OIText(side models.Side) string {
	if side == models.Put {
		return r.PutOIText
	}
	return r.CallOIText
}

// OIDeltaText returns the signed open-interest change of the given side.
func (r Row) OIDeltaText(side models.Side) string {
	if side == models.Put {
		return r.PutOIDeltaText
	}
	return r.CallOIDeltaText
}

// LTPDeltaText returns the signed price change of the given side.
func (r Row) LTPDeltaText(side models.Side) string {
	if side == models.Put {
		return r.PutLTPDeltaText
	}
	return r.CallLTPDeltaText
}

// Result is the outcome for one input observation: either a Row, or a skip
// with the reason the observation could not be used.
type Result struct {
	Strike  string
	Row     Row
	Skipped bool
	Reason  string
}

// Batch aggregates the per-row results of one Compute call, in input order.
type Batch struct {
	Results []Result
}

// Rows returns the successfully computed rows.
func (b Batch) Rows() []Row {
	rows := make([]Row, 0, len(b.Results))
	for _, r := range b.Results {
		if !r.Skipped {
			rows = append(rows, r.Row)
		}
	}
	return rows
}

// Skipped returns the results that were skipped.
func (b Batch) Skipped() []Result {
	var skipped []Result
	for _, r := range b.Results {
		if r.Skipped {
			skipped = append(skipped, r)
		}
	}
	return skipped
}

// Observations returns the current values of the successfully computed rows,
// which become the next cycle's baseline.
func (b Batch) Observations() []models.StrikeObservation {
	obs := make([]models.StrikeObservation, 0, len(b.Results))
	for _, r := range b.Results {
		if !r.Skipped {
			obs = append(obs, r.Row.StrikeObservation)
		}
	}
	return obs
}

// Compute enriches each current observation with its change against previous.
// Strikes absent from previous are compared against a zero baseline. A malformed
// observation is skipped without affecting the rest of the batch.
func Compute(current []models.StrikeObservation, previous models.Snapshot) Batch {
	batch := Batch{Results: make([]Result, 0, len(current))}
	for _, obs := range current {
		row, err := computeRow(obs, previous)
		if err != nil {
			logger.Debug("Skipping strike %q: %v", obs.Strike, err)
			batch.Results = append(batch.Results, Result{Strike: obs.Strike, Skipped: true, Reason: err.Error()})
			continue
		}
		batch.Results = append(batch.Results, Result{Strike: row.Strike, Row: row})
	}
	return batch
}

func computeRow(obs models.StrikeObservation, previous models.Snapshot) (Row, error) {
	strike, err := format.StrikeValue(obs.Strike)
	if err != nil {
		return Row{}, err
	}
	obs.Strike = strike.String()
	if err := obs.Validate(); err != nil {
		return Row{}, fmt.Errorf("invalid observation: %w", err)
	}

	prev := previous[obs.Strike]

	row := Row{
		StrikeObservation: obs,
		StrikeValue:       strike,
		CallOIDelta:       obs.CallOI - prev.CallOI,
		PutOIDelta:        obs.PutOI - prev.PutOI,
		CallLTPDelta:      format.PriceDelta(obs.CallLTP, prev.CallLTP),
		PutLTPDelta:       format.PriceDelta(obs.PutLTP, prev.PutLTP),
		CallOIText:        format.FormatMagnitude(float64(obs.CallOI)),
		PutOIText:         format.FormatMagnitude(float64(obs.PutOI)),
	}
	row.CallOIDeltaText = format.FormatSignedDelta(float64(row.CallOIDelta), true)
	row.PutOIDeltaText = format.FormatSignedDelta(float64(row.PutOIDelta), true)
	row.CallLTPDeltaText = format.FormatSignedDelta(row.CallLTPDelta, false)
	row.PutLTPDeltaText = format.FormatSignedDelta(row.PutLTPDelta, false)
	return row, nil
}
