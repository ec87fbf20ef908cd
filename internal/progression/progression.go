// Package progression persists a user's ledger, achievements and premium
// flag as one blob, and restores it across restarts.
//
// Loading never fails: a missing, unreadable or corrupt blob yields the
// default state. Saving is best-effort: failures are logged and counted, and
// the in-memory state stays authoritative.
package progression

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/atmx/paper-trader/internal/ledger"
	"github.com/atmx/paper-trader/internal/metrics"
	"github.com/atmx/paper-trader/internal/model"
	"github.com/atmx/paper-trader/internal/store"
)

// DefaultKey is the storage key of the single local user.
const DefaultKey = "papertrader:progress"

// Store loads and saves ProgressionState through a blob store.
type Store struct {
	backend      store.Store
	key          string
	startingCash decimal.Decimal
	logger       *slog.Logger
}

// New creates a progression store. Pass nil logger to use slog.Default().
func New(backend store.Store, key string, startingCash decimal.Decimal, logger *slog.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:      backend,
		key:          key,
		startingCash: startingCash,
		logger:       logger.With("component", "progression", "key", key),
	}
}

// Default returns the state of a new user.
func (s *Store) Default() model.ProgressionState {
	return model.ProgressionState{
		Ledger:       ledger.Reset(s.startingCash),
		Achievements: map[string]struct{}{},
	}
}

// Load restores the persisted state, falling back to the default.
func (s *Store) Load(ctx context.Context) model.ProgressionState {
	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Info("no saved progression, starting fresh")
		return s.Default()
	}
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("load").Inc()
		s.logger.Warn("progression load failed, using default state", "err", err)
		return s.Default()
	}

	st, err := Decode(data)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("decode").Inc()
		s.logger.Warn("saved progression unreadable, using default state", "err", err)
		return s.Default()
	}

	s.logger.Info("progression restored",
		"cash", st.Ledger.Cash.String(),
		"holdings", len(st.Ledger.Holdings),
		"xp", st.Ledger.XP,
	)
	return st
}

// Save persists st. Failures are logged and counted, never returned.
func (s *Store) Save(ctx context.Context, st model.ProgressionState) {
	data, err := Encode(st)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("encode").Inc()
		s.logger.Error("progression encode failed", "err", err)
		return
	}
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		metrics.PersistenceFailures.WithLabelValues("save").Inc()
		s.logger.Warn("progression save failed, keeping in-memory state", "err", err)
	}
}

// Reset saves and returns the default state.
func (s *Store) Reset(ctx context.Context) model.ProgressionState {
	st := s.Default()
	s.Save(ctx, st)
	s.logger.Info("progression reset")
	return st
}
