// Package transition defines the conditional state-transition protocol
// shared by every workflow that must change an entity's status exactly once
// under concurrency.
//
// The store applies a Claim as a single conditional write restricted by the
// allowed source statuses; the affected-row count is the ground truth. The
// store never decides which edges are legal: that is the owning workflow's
// job, expressed as a Machine.
package transition

import (
	"encoding/json"

	"github.com/xraph/points/types"
)

// Status is an entity-specific state value.
type Status string

// Kind names the entity family a transitional record belongs to. Each
// workflow registers its own kind; (Kind, ID) is the storage key.
type Kind string

const (
	KindInterest  Kind = "interest"
	KindInvite    Kind = "invite"
	KindCandidate Kind = "pipeline_candidate"
	KindChat      Kind = "chat_session"
)

// Entity is the abstract shape shared by all transitional records: an
// identity, a status, an owner used for tenant filtering, and an opaque
// domain payload.
type Entity struct {
	types.Entity
	Kind    Kind            `json:"kind"`
	ID      string          `json:"id"`
	OwnerID string          `json:"owner_id,omitempty"`
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Claim describes one conditional status update: move the entity to Target
// only if its current status is in From (and, when OwnerID is set, only if
// the entity belongs to that owner). A claim that affects zero rows lost
// the race and is final for that request.
type Claim struct {
	Kind    Kind
	ID      string
	OwnerID string
	From    []Status
	Target  Status
}

// Allows reports whether s is an accepted source status for the claim.
func (c Claim) Allows(s Status) bool {
	for _, from := range c.From {
		if from == s {
			return true
		}
	}
	return false
}
