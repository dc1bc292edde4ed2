package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/repository"
)

// EntitlementService maps users to what their account plan allows.
type EntitlementService struct {
	planRepository       repository.PlanRepository
	assignmentRepository repository.AssignmentRepository
	clock                clockwork.Clock
	defaultPlanID        int64
}

func NewEntitlementService(
	planRepository repository.PlanRepository,
	assignmentRepository repository.AssignmentRepository,
	clock clockwork.Clock,
	defaultPlanID int64,
) *EntitlementService {
	return &EntitlementService{
		planRepository:       planRepository,
		assignmentRepository: assignmentRepository,
		clock:                clock,
		defaultPlanID:        defaultPlanID,
	}
}

// Resolve returns the user's entitlement, assigning the default plan on first use.
// Concurrent first calls for one user leave exactly one assignment row: the
// loser of the insert race re-reads the winner's row.
func (s *EntitlementService) Resolve(ctx context.Context, userID string) (*model.Entitlement, error) {
	assignment, err := s.ensureAssignment(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := s.planRepository.ByID(ctx, assignment.PlanID)
	if errors.Is(err, repository.ErrPlanNotFound) && assignment.PlanID != s.defaultPlanID {
		slog.Warn("assigned plan missing, using default plan", "user_id", userID, "plan_id", assignment.PlanID)
		plan, err = s.planRepository.ByID(ctx, s.defaultPlanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	return &model.Entitlement{
		PlanID:          plan.ID,
		PlanName:        plan.Name,
		RequiredSizes:   plan.Sizes,
		CanViewOriginal: plan.CanViewOriginal,
		CanCreateLink:   plan.CanCreateExpirableLinks,
	}, nil
}

func (s *EntitlementService) ensureAssignment(ctx context.Context, userID string) (*model.AccountPlanAssignment, error) {
	assignment, err := s.assignmentRepository.ByUserID(ctx, userID)
	if err == nil {
		return assignment, nil
	}
	if !errors.Is(err, repository.ErrAssignmentNotFound) {
		return nil, fmt.Errorf("failed to get plan assignment: %w", err)
	}

	now := s.clock.Now().UTC()
	assignment = &model.AccountPlanAssignment{
		UserID:    userID,
		PlanID:    s.defaultPlanID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.assignmentRepository.Create(ctx, assignment)
	if errors.Is(err, repository.ErrDuplicateAssignment) {
		assignment, err = s.assignmentRepository.ByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read plan assignment: %w", err)
		}
		return assignment, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assign default plan: %w", err)
	}

	slog.Info("default plan assigned", "user_id", userID, "plan_id", s.defaultPlanID)
	return assignment, nil
}
