// Package catalog holds the static pricing policy for Points: the cost of
// each priced action and the grant policy for each plan tier. It is pure
// lookup data with no state and no I/O.
package catalog

import "fmt"

// Catalog maps actions to point costs and tiers to grant policies.
type Catalog struct {
	Costs map[Action]int64
	Plans map[Tier]Policy
}

// Default returns the catalog observed in production. Costs and policies
// are policy constants, not invariants; embedders override via
// points.WithCatalog.
func Default() Catalog {
	return Catalog{
		Costs: map[Action]int64{
			ActionContactRequest: 10,
			ActionChatSession:    5,
			ActionJobPost:        20,
			ActionProfileView:    0,
		},
		Plans: map[Tier]Policy{
			TierA: {MonthlyAllotment: 100, CarryoverFraction: 0.5},
			TierB: {MonthlyAllotment: 300, CarryoverFraction: 0.5},
			TierC: {MonthlyAllotment: 1000, CarryoverFraction: 0.5},
		},
	}
}

// Cost returns the point cost of an action. The second return is false for
// actions the catalog does not know, which callers treat as a defect.
func (c Catalog) Cost(action Action) (int64, bool) {
	cost, ok := c.Costs[action]
	return cost, ok
}

// Policy returns the grant policy for a tier.
func (c Catalog) Policy(tier Tier) (Policy, bool) {
	p, ok := c.Plans[tier]
	return p, ok
}

// Validate checks the catalog for negative costs and malformed policies.
func (c Catalog) Validate() error {
	for action, cost := range c.Costs {
		if cost < 0 {
			return fmt.Errorf("catalog: action %q has negative cost %d", action, cost)
		}
	}
	for tier, p := range c.Plans {
		if p.MonthlyAllotment < 0 {
			return fmt.Errorf("catalog: tier %q has negative allotment %d", tier, p.MonthlyAllotment)
		}
		if p.CarryoverFraction < 0 || p.CarryoverFraction > 1 {
			return fmt.Errorf("catalog: tier %q has carryover fraction %v outside [0,1]", tier, p.CarryoverFraction)
		}
	}
	return nil
}
