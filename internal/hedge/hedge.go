// Package hedge implements the time-boxed hedge subsystem: activation of
// synthetic short positions with cost, duration, and cooldown rules, and the
// per-tick expiry machinery. A hedge is a real tradable position marked to
// market by the same ledger logic as any player position, which keeps its
// P&L out of reach of double-accounting bugs an abstract coverage model
// would invite.
package hedge

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jchenlabs/marketdrive/internal/domain"
)

const (
	// minNotional is the minimum absolute position value that a hedge can
	// protect.
	minNotional = 100.0

	// floorCostRate is the minimum transaction cost rate (0.1%) that no
	// discount can reduce below.
	floorCostRate = 0.001

	// maxCostFraction caps the activation cost at this fraction of total
	// portfolio value.
	maxCostFraction = 0.05
)

// Request carries the inputs to a hedge activation.
type Request struct {
	Type           domain.HedgeType
	Price          float64
	PositionValue  float64 // notional being protected (sign ignored)
	PortfolioValue float64
	TickIndex      int
	Timestamp      time.Time
}

// Result reports the outcome of an activation attempt. Rejections are
// structured, never errors: Reason tags the first failing precondition and
// Message carries the human-readable explanation.
type Result struct {
	Activated bool                     `json:"activated"`
	Reason    domain.HedgeRejectReason `json:"reason,omitempty"`
	Message   string                   `json:"message"`
	Hedge     domain.HedgeState        `json:"hedge,omitempty"`
	Position  domain.Position          `json:"position,omitempty"`
	CostPaid  float64                  `json:"costPaid"`
}

// Activate evaluates the activation preconditions in a fixed order (locked,
// cooldown, max hedges, minimum notional, cost budget; first failure wins)
// and on success returns the new skill state with the hedge appended, plus
// the short position the ledger must book. Money movement is the ledger's
// job; Activate never touches cash.
func Activate(skill domain.SkillState, req Request) (domain.SkillState, Result) {
	spec, ok := SpecFor(req.Type)
	if !ok {
		req.Type = domain.HedgeBasic
		spec, _ = SpecFor(domain.HedgeBasic)
	}

	if skill.PlayerLevel < spec.UnlockLevel {
		return reject(skill, domain.HedgeRejectLocked,
			fmt.Sprintf("%s unlocks at level %d", spec.Label, spec.UnlockLevel))
	}
	if skill.HedgeCooldown > 0 {
		return reject(skill, domain.HedgeRejectCooldown,
			fmt.Sprintf("hedging on cooldown for %d more candles", skill.HedgeCooldown))
	}
	if len(skill.ActiveHedges) >= skill.MaxHedges {
		return reject(skill, domain.HedgeRejectMaxHedges,
			fmt.Sprintf("maximum of %d concurrent hedges reached", skill.MaxHedges))
	}

	notional := math.Abs(req.PositionValue)
	if notional < minNotional {
		return reject(skill, domain.HedgeRejectNoPosition,
			"no position large enough to hedge")
	}

	hedgeSize := notional * spec.Beta
	costRate := math.Max(floorCostRate, spec.Cost-skill.HedgeCostReduction)
	costPaid := hedgeSize * costRate

	if costPaid > req.PortfolioValue*maxCostFraction {
		return reject(skill, domain.HedgeRejectInsufficientFunds,
			fmt.Sprintf("hedge cost $%.2f exceeds budget", costPaid))
	}

	// Size fraction relative to the portfolio so exposure aggregates stay in
	// fraction space alongside player positions.
	sizeFraction := 0.0
	if req.PortfolioValue > 0 {
		sizeFraction = hedgeSize / req.PortfolioValue
	}

	pos := domain.Position{
		ID:            uuid.NewString(),
		Direction:     domain.DirectionShort,
		EntryPrice:    req.Price,
		EntryIndex:    req.TickIndex,
		EntryTime:     req.Timestamp,
		Size:          sizeFraction,
		SizeInDollars: hedgeSize,
		CurrentPrice:  req.Price,
		Leverage:      1,
		Instrument:    domain.InstrumentIndex,
		IsHedge:       true,
		Beta:          spec.Beta,
	}

	hs := domain.HedgeState{
		IsActive:         true,
		Type:             req.Type,
		PositionID:       pos.ID,
		Beta:             spec.Beta,
		HedgeSize:        hedgeSize,
		EntryPrice:       req.Price,
		CostPaid:         costPaid,
		RemainingCandles: spec.Duration,
		ActivatedAt:      req.TickIndex,
	}

	out := skill.Clone()
	out.ActiveHedges = append(out.ActiveHedges, hs)
	out.LastMessage = fmt.Sprintf("%s active for %d candles (cost $%.2f)", spec.Label, spec.Duration, costPaid)

	return out, Result{
		Activated: true,
		Message:   out.LastMessage,
		Hedge:     hs,
		Position:  pos,
		CostPaid:  costPaid,
	}
}

func reject(skill domain.SkillState, reason domain.HedgeRejectReason, msg string) (domain.SkillState, Result) {
	out := skill.Clone()
	out.LastMessage = msg
	return out, Result{Reason: reason, Message: msg}
}

// Expiry reports one hedge whose duration elapsed this tick. The caller must
// close PositionID through the ledger; WasUseful records whether the hedge
// finished in profit.
type Expiry struct {
	PositionID string            `json:"positionId"`
	Type       domain.HedgeType  `json:"type"`
	Hedge      domain.HedgeState `json:"hedge"`
	WasUseful  bool              `json:"wasUseful"`
}

// TickResult is the outcome of one ProcessTick call.
type TickResult struct {
	Expired []Expiry
}

// ProcessTick decrements every active hedge by one candle. Hedges that reach
// zero leave the active set and are reported as expired; each expiry arms the
// global cooldown to max(current, max(1, cooldown-reduction)). On ticks with
// no expiry the cooldown decays by one instead. getPositionPnL resolves the
// current unrealized P&L of a hedge's backing position for the usefulness
// report; it is injected so the subsystem stays free of portfolio knowledge.
func ProcessTick(skill domain.SkillState, tickIndex int, getPositionPnL func(positionID string) float64) (domain.SkillState, TickResult) {
	out := skill.Clone()

	var res TickResult
	retained := out.ActiveHedges[:0]
	for _, hs := range out.ActiveHedges {
		hs.RemainingCandles--
		if hs.RemainingCandles > 0 {
			retained = append(retained, hs)
			continue
		}

		hs.IsActive = false
		hs.RemainingCandles = 0

		wasUseful := false
		if getPositionPnL != nil {
			wasUseful = getPositionPnL(hs.PositionID) > 0
		}
		res.Expired = append(res.Expired, Expiry{
			PositionID: hs.PositionID,
			Type:       hs.Type,
			Hedge:      hs,
			WasUseful:  wasUseful,
		})

		spec, _ := SpecFor(hs.Type)
		cd := spec.Cooldown - out.HedgeCooldownReduction
		if cd < 1 {
			cd = 1
		}
		if cd > out.HedgeCooldown {
			out.HedgeCooldown = cd
		}
	}
	out.ActiveHedges = retained

	if len(res.Expired) == 0 && out.HedgeCooldown > 0 {
		out.HedgeCooldown--
	}

	if n := len(res.Expired); n > 0 {
		out.LastMessage = fmt.Sprintf("%d hedge(s) expired at candle %d", n, tickIndex)
	}

	return out, res
}
