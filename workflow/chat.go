package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/points"
	"github.com/xraph/points/catalog"
	"github.com/xraph/points/id"
	"github.com/xraph/points/store"
	"github.com/xraph/points/transition"
	"github.com/xraph/points/types"
)

// Chat session statuses. The NEW -> OPEN edge is the double-charge guard:
// opening is priced, and the claim runs inside the consume transaction, so
// a double-submitted open pays once and conflicts once.
const (
	ChatNew    transition.Status = "NEW"
	ChatOpen   transition.Status = "OPEN"
	ChatClosed transition.Status = "CLOSED"
)

var chatMachine = transition.NewMachine().
	Edge(ChatNew, ChatOpen).
	Edge(ChatOpen, ChatClosed).
	Terminal(ChatClosed)

// ChatPayload is the domain data carried by a chat session entity.
type ChatPayload struct {
	CandidateID string `json:"candidate_id"`
}

// ChatSession is a chat session entity with its payload decoded.
type ChatSession struct {
	ID      string
	OwnerID string
	Status  transition.Status
	ChatPayload
}

func decodeChat(ent *transition.Entity) (*ChatSession, error) {
	c := &ChatSession{ID: ent.ID, OwnerID: ent.OwnerID, Status: ent.Status}
	if len(ent.Payload) > 0 {
		if err := json.Unmarshal(ent.Payload, &c.ChatPayload); err != nil {
			return nil, fmt.Errorf("workflow: decode chat session %s: %w", ent.ID, err)
		}
	}
	return c, nil
}

// CreateChatSession registers a session in NEW state. Creation is free;
// the charge lands when the session opens.
func (s *Service) CreateChatSession(ctx context.Context, orgID string, payload ChatPayload) (*ChatSession, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode chat session: %w", err)
	}

	ent := &transition.Entity{
		Entity:  types.NewEntity(),
		Kind:    transition.KindChat,
		ID:      id.NewChatID().String(),
		OwnerID: orgID,
		Status:  ChatNew,
		Payload: raw,
	}
	if err := s.engine.PutEntity(ctx, ent); err != nil {
		return nil, err
	}
	return decodeChat(ent)
}

// OpenChatSession spends points to open a session. The debit and the
// NEW -> OPEN claim commit together: a session already open (or closed)
// fails the claim and the charge rolls back.
func (s *Service) OpenChatSession(ctx context.Context, orgID, sessionID string) error {
	_, err := s.engine.Consume(ctx, orgID, catalog.ActionChatSession,
		points.WithDescription("chat session "+sessionID),
		points.WithSideEffect(func(ctx context.Context, tx store.Tx) error {
			claimed, err := tx.ClaimTransition(ctx, transition.Claim{
				Kind:    transition.KindChat,
				ID:      sessionID,
				OwnerID: orgID,
				From:    chatMachine.Sources(ChatOpen),
				Target:  ChatOpen,
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

// CloseChatSession closes an open session. Closing is free and terminal.
func (s *Service) CloseChatSession(ctx context.Context, orgID, sessionID string) error {
	return s.engine.ClaimTransition(ctx, transition.Claim{
		Kind:    transition.KindChat,
		ID:      sessionID,
		OwnerID: orgID,
		From:    chatMachine.Sources(ChatClosed),
		Target:  ChatClosed,
	}, nil)
}

// GetChatSession reads a chat session entity.
func (s *Service) GetChatSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	ent, err := s.engine.GetEntity(ctx, transition.KindChat, sessionID)
	if err != nil {
		return nil, err
	}
	return decodeChat(ent)
}
