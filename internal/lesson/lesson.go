// Package lesson holds the static lesson catalog. The core only consumes
// XPReward when a lesson is completed.
package lesson

import "errors"

// ErrNotFound is returned by Lookup for an unknown lesson id.
var ErrNotFound = errors.New("lesson: not found")

// Lesson is one unit of learning content.
type Lesson struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	XPReward int64  `json:"xp_reward"`
	Body     string `json:"body"`
}

var catalog = []Lesson{
	{
		ID:       "basics",
		Title:    "What is a stock?",
		XPReward: 20,
		Body:     "A share is a small piece of ownership in a company. Its price moves as buyers and sellers change their minds about what the company is worth.",
	},
	{
		ID:       "orders",
		Title:    "Buying and selling",
		XPReward: 25,
		Body:     "A buy spends cash at the current price and adds shares to your holdings. A sell removes shares and returns cash. You cannot spend more than you have or sell what you do not own.",
	},
	{
		ID:       "volatility",
		Title:    "Why prices jump",
		XPReward: 30,
		Body:     "Prices drift a little every few seconds. Now and then news hits and a price jumps several dollars at once. Cheap stocks move the most in percentage terms.",
	},
	{
		ID:       "diversification",
		Title:    "Don't put all your eggs in one basket",
		XPReward: 40,
		Body:     "Holding several different instruments means one bad shock hurts less. Try owning at least three at once.",
	},
	{
		ID:       "risk",
		Title:    "Managing risk",
		XPReward: 50,
		Body:     "Decide before you buy how much you are willing to lose. Keep some cash aside so a single trade never wipes you out.",
	},
}

// All returns the lessons in teaching order.
func All() []Lesson {
	out := make([]Lesson, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the lesson with the given id.
func Lookup(id string) (Lesson, error) {
	for _, l := range catalog {
		if l.ID == id {
			return l, nil
		}
	}
	return Lesson{}, ErrNotFound
}
