package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rewired-gh/oidelta/internal/format"
	"github.com/rewired-gh/oidelta/internal/logger"
	"github.com/rewired-gh/oidelta/internal/models"
)

// Legacy field names written by older releases.
const (
	legacyCallOI  = "ce_oi"
	legacyPutOI   = "pe_oi"
	legacyCallLTP = "ce_ltp_num"
	legacyPutLTP  = "pe_ltp_num"
)

func encodeSnapshot(snap models.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = models.Snapshot{}
	}
	return json.MarshalIndent(snap, "", "  ")
}

// decodeSnapshot parses a stored document into canonical entries. migrated
// reports whether any record had to be backfilled, coerced or re-keyed.
func decodeSnapshot(data []byte) (models.Snapshot, bool, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, fmt.Errorf("snapshot document is null")
	}

	snap := make(models.Snapshot, len(raw))
	migrated := false
	for key, value := range raw {
		strike, err := format.CanonicalStrike(key)
		if err != nil {
			logger.Debug("Dropping cache record with unusable strike %q", key)
			migrated = true
			continue
		}
		entry, changed := decodeEntry(value)
		if changed {
			migrated = true
		}
		if strike != key {
			migrated = true
			if _, exists := snap[strike]; exists {
				continue
			}
		}
		snap[strike] = entry
	}
	return snap, migrated, nil
}

func decodeEntry(value json.RawMessage) (models.CacheEntry, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil || fields == nil {
		return models.CacheEntry{}, true
	}

	var entry models.CacheEntry
	var c1, c2, c3, c4 bool
	entry.CallOI, c1 = intField(fields, "ce", legacyCallOI)
	entry.PutOI, c2 = intField(fields, "pe", legacyPutOI)
	entry.CallLTP, c3 = floatField(fields, "ce_ltp", legacyCallLTP)
	entry.PutLTP, c4 = floatField(fields, "pe_ltp", legacyPutLTP)
	return entry, c1 || c2 || c3 || c4
}

// intField reads key, falling back to alias. The bool reports a backfill or coercion.
func intField(fields map[string]json.RawMessage, key, alias string) (int64, bool) {
	if raw, ok := fields[key]; ok {
		n, canonical := toInt(raw)
		return n, !canonical
	}
	if raw, ok := fields[alias]; ok {
		n, _ := toInt(raw)
		return n, true
	}
	return 0, true
}

func floatField(fields map[string]json.RawMessage, key, alias string) (float64, bool) {
	if raw, ok := fields[key]; ok {
		f, canonical := toFloat(raw)
		return f, !canonical
	}
	if raw, ok := fields[alias]; ok {
		f, _ := toFloat(raw)
		return f, true
	}
	return 0, true
}

func toInt(raw json.RawMessage) (int64, bool) {
	t := bytes.TrimSpace(raw)
	if s, ok := jsonString(t); ok {
		return format.ParseCount(s), false
	}
	if n, err := strconv.ParseInt(string(t), 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(string(t), 64); err == nil {
		return int64(f), false
	}
	return 0, false
}

func toFloat(raw json.RawMessage) (float64, bool) {
	t := bytes.TrimSpace(raw)
	if s, ok := jsonString(t); ok {
		return format.ParseNumber(s), false
	}
	if f, err := strconv.ParseFloat(string(t), 64); err == nil {
		return f, true
	}
	return 0, false
}

func jsonString(t []byte) (string, bool) {
	if len(t) == 0 || t[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(t, &s); err != nil {
		return "", false
	}
	return s, true
}
