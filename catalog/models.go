package catalog

// Action is a priced operation type.
type Action string

// Actions priced by the default catalog.
const (
	ActionContactRequest Action = "contact_request"
	ActionChatSession    Action = "chat_session"
	ActionJobPost        Action = "job_post"
	ActionProfileView    Action = "profile_view"
)

// Tier identifies a subscription plan tier.
type Tier string

const (
	TierA Tier = "tier_a"
	TierB Tier = "tier_b"
	TierC Tier = "tier_c"
)

// Policy is the per-tier grant policy: how many points a billing cycle
// credits and what fraction of the allotment may carry over into the next
// cycle without expiring.
type Policy struct {
	MonthlyAllotment  int64   `json:"monthly_allotment"`
	CarryoverFraction float64 `json:"carryover_fraction"`
}

// CarryoverCap returns the maximum balance that survives a new grant.
func (p Policy) CarryoverCap() int64 {
	return int64(float64(p.MonthlyAllotment) * p.CarryoverFraction)
}
