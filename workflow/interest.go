package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/points"
	"github.com/xraph/points/catalog"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/transition"
	"github.com/xraph/points/types"
)

// Interest statuses.
const (
	InterestExpressed        transition.Status = "EXPRESSED"
	InterestContactRequested transition.Status = "CONTACT_REQUESTED"
	InterestContactDisclosed transition.Status = "CONTACT_DISCLOSED"
	InterestDeclined         transition.Status = "DECLINED"
)

var interestMachine = transition.NewMachine().
	Edge(InterestExpressed, InterestContactRequested).
	Edge(InterestExpressed, InterestDeclined).
	Edge(InterestContactRequested, InterestContactDisclosed).
	Edge(InterestContactRequested, InterestDeclined).
	Terminal(InterestContactDisclosed, InterestDeclined)

// InterestPayload is the domain data carried by an interest entity.
type InterestPayload struct {
	CandidateID string `json:"candidate_id"`
	JobID       string `json:"job_id,omitempty"`
	Contact     string `json:"contact,omitempty"` // filled on disclosure
}

// Interest is an interest entity with its payload decoded.
type Interest struct {
	ID      string
	OwnerID string
	Status  transition.Status
	InterestPayload
}

func decodeInterest(ent *transition.Entity) (*Interest, error) {
	in := &Interest{ID: ent.ID, OwnerID: ent.OwnerID, Status: ent.Status}
	if len(ent.Payload) > 0 {
		if err := json.Unmarshal(ent.Payload, &in.InterestPayload); err != nil {
			return nil, fmt.Errorf("workflow: decode interest %s: %w", ent.ID, err)
		}
	}
	return in, nil
}

// ExpressInterest records a candidate's interest toward an organization.
// Free of charge; the entity starts at EXPRESSED.
func (s *Service) ExpressInterest(ctx context.Context, orgID string, payload InterestPayload) (*Interest, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode interest: %w", err)
	}

	ent := &transition.Entity{
		Entity:  types.NewEntity(),
		Kind:    transition.KindInterest,
		ID:      id.NewInterestID().String(),
		OwnerID: orgID,
		Status:  InterestExpressed,
		Payload: raw,
	}
	if err := s.engine.PutEntity(ctx, ent); err != nil {
		return nil, err
	}
	return decodeInterest(ent)
}

// RequestContact spends points to unlock a candidate's contact details.
//
// The debit and the EXPRESSED -> CONTACT_REQUESTED claim run in one
// transaction: a double-submit loses the claim, which rolls the charge
// back, so the organization pays exactly once per interest.
func (s *Service) RequestContact(ctx context.Context, orgID, interestID string) error {
	_, err := s.engine.Consume(ctx, orgID, catalog.ActionContactRequest,
		points.WithDescription("contact request "+interestID),
		points.WithSideEffect(func(ctx context.Context, tx store.Tx) error {
			claimed, err := tx.ClaimTransition(ctx, transition.Claim{
				Kind:    transition.KindInterest,
				ID:      interestID,
				OwnerID: orgID,
				From:    interestMachine.Sources(InterestContactRequested),
				Target:  InterestContactRequested,
			})
			if err != nil {
				return err
			}
			if !claimed {
				return points.ErrConflict
			}
			return nil
		}),
	)
	return err
}

// DiscloseContact finishes the flow: it stamps the contact details into the
// payload and moves the interest to its terminal CONTACT_DISCLOSED state.
//
// Disclosure is idempotent. A repeat call that loses the claim re-reads the
// entity; when it is already disclosed, the stored contact comes back with
// no error, so retries and double-clicks converge on the same answer.
func (s *Service) DiscloseContact(ctx context.Context, orgID, interestID, contact string) (*Interest, error) {
	claim := transition.Claim{
		Kind:    transition.KindInterest,
		ID:      interestID,
		OwnerID: orgID,
		From:    interestMachine.Sources(InterestContactDisclosed),
		Target:  InterestContactDisclosed,
	}

	err := s.engine.ClaimTransition(ctx, claim, func(ctx context.Context, tx store.Tx) error {
		ent, err := tx.GetEntity(ctx, transition.KindInterest, interestID)
		if err != nil {
			return err
		}
		var payload InterestPayload
		if len(ent.Payload) > 0 {
			if err := json.Unmarshal(ent.Payload, &payload); err != nil {
				return err
			}
		}
		payload.Contact = contact
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		ent.Payload = raw
		ent.Touch()
		return tx.PutEntity(ctx, ent)
	})
	if err != nil {
		if !errors.Is(err, points.ErrConflict) {
			return nil, err
		}
		// Lost the race. Terminal states are final, so a re-read settles
		// whether this is a benign retry.
		ent, getErr := s.engine.GetEntity(ctx, transition.KindInterest, interestID)
		if getErr != nil {
			return nil, getErr
		}
		if ent.Status != InterestContactDisclosed {
			return nil, err
		}
		return decodeInterest(ent)
	}

	ent, err := s.engine.GetEntity(ctx, transition.KindInterest, interestID)
	if err != nil {
		return nil, err
	}
	return decodeInterest(ent)
}

// DeclineInterest moves an interest to DECLINED from any non-terminal
// state.
func (s *Service) DeclineInterest(ctx context.Context, orgID, interestID string) error {
	return s.engine.ClaimTransition(ctx, transition.Claim{
		Kind:    transition.KindInterest,
		ID:      interestID,
		OwnerID: orgID,
		From:    interestMachine.Sources(InterestDeclined),
		Target:  InterestDeclined,
	}, nil)
}

// GetInterest reads an interest entity.
func (s *Service) GetInterest(ctx context.Context, interestID string) (*Interest, error) {
	ent, err := s.engine.GetEntity(ctx, transition.KindInterest, interestID)
	if err != nil {
		return nil, err
	}
	return decodeInterest(ent)
}
