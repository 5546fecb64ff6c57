package hedge

import "github.com/jchenlabs/marketdrive/internal/domain"

// Spec is the fixed profile of one hedge type: how much of the position's
// notional is shorted (beta), the cost rate charged on that notional, how
// many candles the hedge lives, the cooldown imposed when it expires, and
// the player level that unlocks it.
type Spec struct {
	Beta        float64
	Cost        float64
	Duration    int
	Cooldown    int
	UnlockLevel int
	Label       string
}

var specs = map[domain.HedgeType]Spec{
	domain.HedgeBasic:   {Beta: 0.70, Cost: 0.005, Duration: 5, Cooldown: 5, UnlockLevel: 1, Label: "Basic Hedge"},
	domain.HedgeTight:   {Beta: 0.90, Cost: 0.008, Duration: 3, Cooldown: 4, UnlockLevel: 5, Label: "Tight Hedge"},
	domain.HedgeTail:    {Beta: 0.50, Cost: 0.003, Duration: 10, Cooldown: 8, UnlockLevel: 10, Label: "Tail Protection"},
	domain.HedgeDynamic: {Beta: 0.75, Cost: 0.006, Duration: 7, Cooldown: 3, UnlockLevel: 15, Label: "Dynamic Hedge"},
}

// SpecFor returns the profile for the given hedge type.
func SpecFor(t domain.HedgeType) (Spec, bool) {
	s, ok := specs[t]
	return s, ok
}

// Types returns the known hedge types in unlock order.
func Types() []domain.HedgeType {
	return []domain.HedgeType{domain.HedgeBasic, domain.HedgeTight, domain.HedgeTail, domain.HedgeDynamic}
}
