package progression

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/paper-trader/internal/model"
)

// SchemaVersion is written into every saved blob. Blobs without a version
// field predate it and share the version 1 layout.
const SchemaVersion = 1

var (
	// ErrCorrupt is returned when a blob cannot be decoded into a valid state.
	ErrCorrupt = errors.New("progression: corrupt persisted state")

	// ErrUnsupportedVersion is returned for blobs written by a newer schema.
	ErrUnsupportedVersion = errors.New("progression: unsupported schema version")
)

// blob is the persisted layout: {version, cash, holdings, xp, achievements, premium}.
type blob struct {
	Version      *int             `json:"version,omitempty"`
	Cash         json.Number      `json:"cash"`
	Holdings     map[string]int64 `json:"holdings"`
	XP           int64            `json:"xp"`
	Achievements []string         `json:"achievements"`
	Premium      bool             `json:"premium"`
}

// Encode serializes a state. Cash is written as a JSON number with two
// decimals.
func Encode(st model.ProgressionState) ([]byte, error) {
	v := SchemaVersion
	holdings := st.Ledger.Holdings
	if holdings == nil {
		holdings = map[string]int64{}
	}
	return json.Marshal(blob{
		Version:      &v,
		Cash:         json.Number(model.Round2(st.Ledger.Cash).StringFixed(model.MoneyScale)),
		Holdings:     holdings,
		XP:           st.Ledger.XP,
		Achievements: st.AchievementList(),
		Premium:      st.Premium,
	})
}

// Decode parses and validates a blob. Zero-quantity holdings are dropped;
// negative amounts are corrupt.
func Decode(data []byte) (model.ProgressionState, error) {
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return model.ProgressionState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if b.Version != nil && (*b.Version < 0 || *b.Version > SchemaVersion) {
		return model.ProgressionState{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *b.Version)
	}

	cash, err := decimal.NewFromString(b.Cash.String())
	if err != nil {
		return model.ProgressionState{}, fmt.Errorf("%w: cash %q", ErrCorrupt, b.Cash)
	}
	if cash.IsNegative() {
		return model.ProgressionState{}, fmt.Errorf("%w: negative cash %s", ErrCorrupt, cash)
	}
	if b.XP < 0 {
		return model.ProgressionState{}, fmt.Errorf("%w: negative xp %d", ErrCorrupt, b.XP)
	}

	holdings := make(map[string]int64, len(b.Holdings))
	for sym, qty := range b.Holdings {
		switch {
		case qty < 0:
			return model.ProgressionState{}, fmt.Errorf("%w: negative holding %s=%d", ErrCorrupt, sym, qty)
		case qty > 0:
			holdings[sym] = qty
		}
	}

	achievements := make(map[string]struct{}, len(b.Achievements))
	for _, id := range b.Achievements {
		achievements[id] = struct{}{}
	}

	return model.ProgressionState{
		Ledger: model.LedgerState{
			Cash:     model.Round2(cash),
			Holdings: holdings,
			XP:       b.XP,
		},
		Achievements: achievements,
		Premium:      b.Premium,
	}, nil
}
