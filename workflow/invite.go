package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/transition"
	"github.com/xraph/points/types"
)

// Invite statuses. PENDING is the only state with outgoing edges: an invite
// is used, revoked, or expired exactly once.
const (
	InvitePending transition.Status = "PENDING"
	InviteUsed    transition.Status = "USED"
	InviteExpired transition.Status = "EXPIRED"
	InviteRevoked transition.Status = "REVOKED"
)

var inviteMachine = transition.NewMachine().
	Edge(InvitePending, InviteUsed).
	Edge(InvitePending, InviteExpired).
	Edge(InvitePending, InviteRevoked).
	Terminal(InviteUsed, InviteExpired, InviteRevoked)

// InvitePayload is the domain data carried by an invite entity.
type InvitePayload struct {
	Email      string     `json:"email"`
	Role       string     `json:"role,omitempty"`
	AcceptedBy string     `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// Invite is an invite entity with its payload decoded.
type Invite struct {
	ID      string
	OwnerID string
	Status  transition.Status
	InvitePayload
}

func decodeInvite(ent *transition.Entity) (*Invite, error) {
	inv := &Invite{ID: ent.ID, OwnerID: ent.OwnerID, Status: ent.Status}
	if len(ent.Payload) > 0 {
		if err := json.Unmarshal(ent.Payload, &inv.InvitePayload); err != nil {
			return nil, fmt.Errorf("workflow: decode invite %s: %w", ent.ID, err)
		}
	}
	return inv, nil
}

// CreateInvite issues a team invite in PENDING state.
func (s *Service) CreateInvite(ctx context.Context, orgID string, payload InvitePayload) (*Invite, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode invite: %w", err)
	}

	ent := &transition.Entity{
		Entity:  types.NewEntity(),
		Kind:    transition.KindInvite,
		ID:      id.NewInviteID().String(),
		OwnerID: orgID,
		Status:  InvitePending,
		Payload: raw,
	}
	if err := s.engine.PutEntity(ctx, ent); err != nil {
		return nil, err
	}
	return decodeInvite(ent)
}

// AcceptInvite consumes an invite for the given user. The PENDING -> USED
// claim and the membership stamp commit in one transaction, so two people
// accepting the same link race for the single claim and exactly one joins.
func (s *Service) AcceptInvite(ctx context.Context, inviteID, userID string) error {
	return s.engine.ClaimTransition(ctx, transition.Claim{
		Kind:   transition.KindInvite,
		ID:     inviteID,
		From:   inviteMachine.Sources(InviteUsed),
		Target: InviteUsed,
	}, func(ctx context.Context, tx store.Tx) error {
		ent, err := tx.GetEntity(ctx, transition.KindInvite, inviteID)
		if err != nil {
			return err
		}
		var payload InvitePayload
		if len(ent.Payload) > 0 {
			if err := json.Unmarshal(ent.Payload, &payload); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		payload.AcceptedBy = userID
		payload.AcceptedAt = &now
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		ent.Payload = raw
		ent.Touch()
		return tx.PutEntity(ctx, ent)
	})
}

// RevokeInvite withdraws a pending invite.
func (s *Service) RevokeInvite(ctx context.Context, orgID, inviteID string) error {
	return s.engine.ClaimTransition(ctx, transition.Claim{
		Kind:    transition.KindInvite,
		ID:      inviteID,
		OwnerID: orgID,
		From:    inviteMachine.Sources(InviteRevoked),
		Target:  InviteRevoked,
	}, nil)
}

// ExpireInvite marks a pending invite as expired. Typically driven by a
// scheduler; expiring an already-consumed invite is a conflict, not an
// error to retry.
func (s *Service) ExpireInvite(ctx context.Context, inviteID string) error {
	return s.engine.ClaimTransition(ctx, transition.Claim{
		Kind:   transition.KindInvite,
		ID:     inviteID,
		From:   inviteMachine.Sources(InviteExpired),
		Target: InviteExpired,
	}, nil)
}

// GetInvite reads an invite entity.
func (s *Service) GetInvite(ctx context.Context, inviteID string) (*Invite, error) {
	ent, err := s.engine.GetEntity(ctx, transition.KindInvite, inviteID)
	if err != nil {
		return nil, err
	}
	return decodeInvite(ent)
}
