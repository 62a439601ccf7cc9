package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/points"
	"github.com/xraph/points/id"
	"github.com/xraph/points/transition"
	"github.com/xraph/points/types"
)

// Pipeline stages are free-form: companies define their own hiring steps.
// Legality is a policy decision, not an edge set; the claim still makes the
// move itself at-most-once.

// StagePolicy decides whether a company may move a candidate between two
// stages. It gates deny-listed moves, not concurrency.
type StagePolicy interface {
	Allowed(orgID string, from, to transition.Status) bool
}

type allowAllStages struct{}

func (allowAllStages) Allowed(string, transition.Status, transition.Status) bool { return true }

// DenyList is a StagePolicy that forbids specific target stages per
// organization. An empty list for an organization allows everything.
type DenyList map[string][]transition.Status

// Allowed implements StagePolicy.
func (d DenyList) Allowed(orgID string, _, to transition.Status) bool {
	for _, denied := range d[orgID] {
		if denied == to {
			return false
		}
	}
	return true
}

// CandidatePayload is the domain data carried by a pipeline candidate.
type CandidatePayload struct {
	Name  string `json:"name,omitempty"`
	JobID string `json:"job_id,omitempty"`
}

// Candidate is a pipeline candidate with its payload decoded.
type Candidate struct {
	ID      string
	OwnerID string
	Stage   transition.Status
	CandidatePayload
}

func decodeCandidate(ent *transition.Entity) (*Candidate, error) {
	c := &Candidate{ID: ent.ID, OwnerID: ent.OwnerID, Stage: ent.Status}
	if len(ent.Payload) > 0 {
		if err := json.Unmarshal(ent.Payload, &c.CandidatePayload); err != nil {
			return nil, fmt.Errorf("workflow: decode candidate %s: %w", ent.ID, err)
		}
	}
	return c, nil
}

// AddCandidate places a candidate into the organization's pipeline at the
// given initial stage.
func (s *Service) AddCandidate(ctx context.Context, orgID string, stage transition.Status, payload CandidatePayload) (*Candidate, error) {
	if stage == "" {
		return nil, points.ErrInvalidInput
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode candidate: %w", err)
	}

	ent := &transition.Entity{
		Entity:  types.NewEntity(),
		Kind:    transition.KindCandidate,
		ID:      id.NewCandidateID().String(),
		OwnerID: orgID,
		Status:  stage,
		Payload: raw,
	}
	if err := s.engine.PutEntity(ctx, ent); err != nil {
		return nil, err
	}
	return decodeCandidate(ent)
}

// MoveCandidate moves a candidate from one stage to another. The caller
// states the stage it believes the candidate is in; a stale belief loses
// the claim and surfaces as a conflict, which keeps two recruiters from
// silently overwriting each other's moves.
func (s *Service) MoveCandidate(ctx context.Context, orgID, candidateID string, from, to transition.Status) error {
	if from == "" || to == "" || from == to {
		return points.ErrInvalidInput
	}
	if !s.stagePolicy.Allowed(orgID, from, to) {
		return fmt.Errorf("%w: stage %q is not allowed", points.ErrInvalidInput, to)
	}

	return s.engine.ClaimTransition(ctx, transition.Claim{
		Kind:    transition.KindCandidate,
		ID:      candidateID,
		OwnerID: orgID,
		From:    []transition.Status{from},
		Target:  to,
	}, nil)
}

// GetCandidate reads a pipeline candidate.
func (s *Service) GetCandidate(ctx context.Context, candidateID string) (*Candidate, error) {
	ent, err := s.engine.GetEntity(ctx, transition.KindCandidate, candidateID)
	if err != nil {
		return nil, err
	}
	return decodeCandidate(ent)
}
