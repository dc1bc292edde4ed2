package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/pixelplan/internal/model"
)

var (
	ErrPlanNotFound = errors.New("account plan not found")
)

const planColumns = `id, name, have_access_to_original_link, can_create_expirable_links`

type PlanRepository interface {
	ByID(ctx context.Context, id int64) (*model.AccountPlan, error)
	All(ctx context.Context) ([]*model.AccountPlan, error)
	// Upsert writes the plan and replaces its size set. Sizes are created on demand.
	Upsert(ctx context.Context, plan *model.AccountPlan) error
	// Delete removes the plan after moving its users to fallbackID.
	Delete(ctx context.Context, id, fallbackID int64, at time.Time) error
}

type planRepository struct {
	db *sqlx.DB
}

func NewPlanRepository(db *sqlx.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) ByID(ctx context.Context, id int64) (*model.AccountPlan, error) {
	plan := &model.AccountPlan{}

	err := r.db.GetContext(ctx, plan, `SELECT `+planColumns+` FROM account_plans WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}

	plan.Sizes, err = r.sizes(ctx, id)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) All(ctx context.Context) ([]*model.AccountPlan, error) {
	plans := []*model.AccountPlan{}

	err := r.db.SelectContext(ctx, &plans, `SELECT `+planColumns+` FROM account_plans ORDER BY id`)
	if err != nil {
		return nil, err
	}

	for _, plan := range plans {
		plan.Sizes, err = r.sizes(ctx, plan.ID)
		if err != nil {
			return nil, err
		}
	}
	return plans, nil
}

func (r *planRepository) sizes(ctx context.Context, planID int64) ([]model.ThumbnailSize, error) {
	sizes := []model.ThumbnailSize{}
	query := `SELECT s.id, s.width, s.height
		FROM thumbnail_sizes s
		JOIN account_plan_sizes ps ON ps.size_id = s.id
		WHERE ps.plan_id = $1
		ORDER BY s.width, s.height`

	err := r.db.SelectContext(ctx, &sizes, query, planID)
	if err != nil {
		return nil, err
	}
	return sizes, nil
}

func (r *planRepository) Upsert(ctx context.Context, plan *model.AccountPlan) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO account_plans (` + planColumns + `) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			have_access_to_original_link = excluded.have_access_to_original_link,
			can_create_expirable_links = excluded.can_create_expirable_links`

	_, err = tx.ExecContext(ctx, query, plan.ID, plan.Name, plan.CanViewOriginal, plan.CanCreateExpirableLinks)
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM account_plan_sizes WHERE plan_id = $1`, plan.ID)
	if err != nil {
		return fmt.Errorf("failed to clear plan sizes: %w", err)
	}

	for i := range plan.Sizes {
		size := &plan.Sizes[i]
		size.ID = size.Descriptor()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO thumbnail_sizes (id, width, height) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			size.ID, size.Width, size.Height)
		if err != nil {
			return fmt.Errorf("failed to upsert size %s: %w", size.ID, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO account_plan_sizes (plan_id, size_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			plan.ID, size.ID)
		if err != nil {
			return fmt.Errorf("failed to attach size %s: %w", size.ID, err)
		}
	}

	return tx.Commit()
}

func (r *planRepository) Delete(ctx context.Context, id, fallbackID int64, at time.Time) error {
	if id == fallbackID {
		return fmt.Errorf("plan %d cannot fall back to itself", id)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE account_plan_assignments SET plan_id = $1, updated_at = $2 WHERE plan_id = $3`,
		fallbackID, at, id)
	if err != nil {
		return fmt.Errorf("failed to reassign users: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM account_plans WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPlanNotFound
	}
	return tx.Commit()
}
