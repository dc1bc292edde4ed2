package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/pixelplan/internal/model"
)

var (
	ErrAssignmentNotFound  = errors.New("plan assignment not found")
	ErrDuplicateAssignment = errors.New("user already has a plan assignment")
)

type AssignmentRepository interface {
	ByUserID(ctx context.Context, userID string) (*model.AccountPlanAssignment, error)
	// Create fails with ErrDuplicateAssignment when the user is already assigned.
	Create(ctx context.Context, assignment *model.AccountPlanAssignment) error
	// SetPlan assigns or reassigns a user.
	SetPlan(ctx context.Context, userID string, planID int64, at time.Time) error
}

type assignmentRepository struct {
	db *sqlx.DB
}

func NewAssignmentRepository(db *sqlx.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) ByUserID(ctx context.Context, userID string) (*model.AccountPlanAssignment, error) {
	assignment := &model.AccountPlanAssignment{}
	query := `SELECT user_id, plan_id, created_at, updated_at FROM account_plan_assignments WHERE user_id = $1`

	err := r.db.GetContext(ctx, assignment, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *model.AccountPlanAssignment) error {
	query := `INSERT INTO account_plan_assignments (user_id, plan_id, created_at, updated_at) VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query,
		assignment.UserID,
		assignment.PlanID,
		assignment.CreatedAt,
		assignment.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateAssignment
	}
	return err
}

func (r *assignmentRepository) SetPlan(ctx context.Context, userID string, planID int64, at time.Time) error {
	query := `INSERT INTO account_plan_assignments (user_id, plan_id, created_at, updated_at) VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET plan_id = excluded.plan_id, updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query, userID, planID, at)
	return err
}
