package progression

import (
	"github.com/atmx/paper-trader/internal/model"
)

// Achievement ids.
const (
	FirstTrade    = "first_trade"
	FirstSell     = "first_sell"
	Diversified   = "diversified"
	XP100         = "xp_100"
	XP500         = "xp_500"
	PremiumMember = "premium_member"

	// LessonPrefix marks a completed lesson: "lesson:<id>".
	LessonPrefix = "lesson:"
)

// diversifiedHoldings is the number of distinct instruments held at once
// that unlocks Diversified.
const diversifiedHoldings = 3

// Earned returns the state-derived achievements st currently qualifies for,
// whether or not they are already unlocked.
func Earned(st model.ProgressionState) []string {
	var ids []string
	if len(st.Ledger.Holdings) >= diversifiedHoldings {
		ids = append(ids, Diversified)
	}
	if st.Ledger.XP >= 100 {
		ids = append(ids, XP100)
	}
	if st.Ledger.XP >= 500 {
		ids = append(ids, XP500)
	}
	if st.Premium {
		ids = append(ids, PremiumMember)
	}
	return ids
}

// Unlock adds ids to the achievement set and returns the new state plus the
// ids that were not already present. The input is not mutated.
func Unlock(st model.ProgressionState, ids ...string) (model.ProgressionState, []string) {
	next := st.Clone()
	var added []string
	for _, id := range ids {
		if _, ok := next.Achievements[id]; ok {
			continue
		}
		next.Achievements[id] = struct{}{}
		added = append(added, id)
	}
	return next, added
}

// SetPremium flips the premium flag. It has no other effect.
func SetPremium(st model.ProgressionState, premium bool) model.ProgressionState {
	next := st.Clone()
	next.Premium = premium
	return next
}
