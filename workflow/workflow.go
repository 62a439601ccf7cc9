// Package workflow implements the recurring marketplace flows on top of the
// Points engine: candidate interest, team invites, pipeline stages, and
// chat session guards.
//
// Every flow follows the same protocol. The entity's status lives in the
// store; moving it is a conditional claim that succeeds at most once; and
// when a move costs points, the claim runs inside the consume transaction
// so a lost race also rolls back the charge.
package workflow

import (
	"log/slog"

	"github.com/xraph/points"
)

// Service exposes the marketplace flows as methods over one engine.
type Service struct {
	engine *points.Engine
	logger *slog.Logger

	stagePolicy StagePolicy
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithStagePolicy sets the pipeline stage policy. The default allows every
// move.
func WithStagePolicy(p StagePolicy) ServiceOption {
	return func(s *Service) { s.stagePolicy = p }
}

// NewService creates a workflow service over the given engine.
func NewService(engine *points.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine:      engine,
		logger:      slog.Default(),
		stagePolicy: allowAllStages{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
