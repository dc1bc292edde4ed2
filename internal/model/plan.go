package model

import (
	"time"
)

type AccountPlan struct {
	ID                      int64  `db:"id" json:"id"`
	Name                    string `db:"name" json:"name"`
	CanViewOriginal         bool   `db:"have_access_to_original_link" json:"have_access_to_original_link"`
	CanCreateExpirableLinks bool   `db:"can_create_expirable_links" json:"can_create_expirable_links"`

	Sizes []ThumbnailSize `db:"-" json:"sizes"`
}

type AccountPlanAssignment struct {
	UserID    string    `db:"user_id"`
	PlanID    int64     `db:"plan_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Entitlement is what a user's plan allows.
type Entitlement struct {
	PlanID          int64
	PlanName        string
	RequiredSizes   []ThumbnailSize
	CanViewOriginal bool
	CanCreateLink   bool
}

// MissingSizes returns the required sizes whose ids are not in existing, in plan order.
func (e *Entitlement) MissingSizes(existing []string) []ThumbnailSize {
	have := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		have[id] = struct{}{}
	}

	var missing []ThumbnailSize
	for _, size := range e.RequiredSizes {
		if _, ok := have[size.ID]; !ok {
			missing = append(missing, size)
		}
	}
	return missing
}
