// Package storage persists the last-observed open interest and prices per strike
// so the next cycle can compute deltas against them.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewired-gh/oidelta/internal/logger"
	"github.com/rewired-gh/oidelta/internal/models"
)

// ErrNotFound is returned by a Backend when no snapshot has been written yet.
var ErrNotFound = errors.New("snapshot not found")

// Backend stores the snapshot document as an opaque blob.
// Write must replace the whole document atomically.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
	String() string
}

// LoadInfo describes what happened while loading a snapshot.
type LoadInfo struct {
	Found     bool  // a document existed and parsed
	Migrated  bool  // legacy records were backfilled or keys canonicalized
	Rewritten bool  // the migrated document was written back
	Err       error // read, parse or rewrite failure; never fatal
}

// Store is the persistent delta store. It owns all cross-cycle state.
type Store struct {
	backend Backend
}

// New wraps a backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Load returns the previous snapshot. A missing or unreadable document yields an
// empty snapshot; legacy records are migrated and written back best-effort.
func (s *Store) Load(ctx context.Context) (models.Snapshot, LoadInfo) {
	var info LoadInfo

	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		logger.Info("No cached snapshot in %s, starting fresh", s.backend)
		return models.Snapshot{}, info
	}
	if err != nil {
		info.Err = fmt.Errorf("failed to read snapshot: %w", err)
		logger.Warn("Cache load failed, starting from empty baseline: %v", err)
		return models.Snapshot{}, info
	}

	snap, migrated, err := decodeSnapshot(data)
	if err != nil {
		info.Err = fmt.Errorf("failed to decode snapshot: %w", err)
		logger.Warn("Cache is not valid, starting from empty baseline: %v", err)
		return models.Snapshot{}, info
	}
	info.Found = true
	info.Migrated = migrated

	if migrated {
		if err := s.write(ctx, snap); err != nil {
			info.Err = err
			logger.Warn("Failed writing migrated cache: %v", err)
		} else {
			info.Rewritten = true
			logger.Info("Migrated cache to canonical ce/pe/ce_ltp/pe_ltp records")
		}
	}

	logger.Info("Loaded %d strikes from %s", len(snap), s.backend)
	return snap, info
}

// Save replaces the stored snapshot with one entry per observation. Strikes not
// present in observations are dropped. It reports false on failure.
func (s *Store) Save(ctx context.Context, observations []models.StrikeObservation) bool {
	snap := models.SnapshotOf(observations)
	if err := s.write(ctx, snap); err != nil {
		logger.Error("Cache save failed: %v", err)
		return false
	}
	logger.Info("Saved %d strikes to %s", len(snap), s.backend)
	return true
}

func (s *Store) write(ctx context.Context, snap models.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}
