package domain

// HedgeType selects one of the configured hedge profiles.
type HedgeType string

const (
	HedgeBasic   HedgeType = "basic"
	HedgeTight   HedgeType = "tight"
	HedgeTail    HedgeType = "tail"
	HedgeDynamic HedgeType = "dynamic"
)

// HedgeRejectReason tags a failed hedge activation. Activation failures are
// structured results, never errors; the first failing precondition wins.
type HedgeRejectReason string

const (
	HedgeRejectLocked            HedgeRejectReason = "locked"
	HedgeRejectCooldown          HedgeRejectReason = "cooldown"
	HedgeRejectMaxHedges         HedgeRejectReason = "max_hedges"
	HedgeRejectNoPosition        HedgeRejectReason = "no_position"
	HedgeRejectInsufficientFunds HedgeRejectReason = "insufficient_funds"
)

// HedgeState is one active protective short. RemainingCandles counts down by
// one per tick; at zero the hedge leaves the active set and its backing
// position is scheduled for closure.
type HedgeState struct {
	IsActive         bool      `json:"isActive"`
	Type             HedgeType `json:"type"`
	PositionID       string    `json:"positionId"` // the short Position created for this hedge
	Beta             float64   `json:"beta"`
	HedgeSize        float64   `json:"hedgeSize"` // dollars
	EntryPrice       float64   `json:"entryPrice"`
	CostPaid         float64   `json:"costPaid"`
	RemainingCandles int       `json:"remainingCandles"`
	ActivatedAt      int       `json:"activatedAt"` // tick index
}

// SkillState is the hedge governance block: cooldown gating, the concurrent
// hedge cap, unlock level, and the monotone cost/cooldown discounts earned
// through play.
type SkillState struct {
	HedgeCooldown          int          `json:"hedgeCooldown"` // ticks before another activation is allowed
	MaxHedges              int          `json:"maxHedges"`
	PlayerLevel            int          `json:"playerLevel"`
	HedgeCostReduction     float64      `json:"hedgeCostReduction"`
	HedgeCooldownReduction int          `json:"hedgeCooldownReduction"`
	ActiveHedges           []HedgeState `json:"activeHedges"`
	LastMessage            string       `json:"lastMessage,omitempty"` // diagnostic only
}

// Clone returns a deep copy of the skill state.
func (s SkillState) Clone() SkillState {
	out := s
	out.ActiveHedges = append([]HedgeState(nil), s.ActiveHedges...)
	return out
}
