package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/templui/pixelplan/internal/model"
	"github.com/templui/pixelplan/internal/repository"
	"gopkg.in/yaml.v3"
)

// Catalog is the plans file format.
type Catalog struct {
	Plans []CatalogPlan `yaml:"plans"`
}

type CatalogPlan struct {
	ID             int64         `yaml:"id"`
	Name           string        `yaml:"name"`
	Original       bool          `yaml:"original"`
	ExpirableLinks bool          `yaml:"expirable_links"`
	Sizes          []CatalogSize `yaml:"sizes"`
}

type CatalogSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SyncResult lists what a catalog sync changed.
type SyncResult struct {
	Upserted []int64
	Deleted  []int64
}

type PlanService struct {
	planRepository       repository.PlanRepository
	assignmentRepository repository.AssignmentRepository
	userRepository       repository.UserRepository
	clock                clockwork.Clock
	defaultPlanID        int64
}

func NewPlanService(
	planRepository repository.PlanRepository,
	assignmentRepository repository.AssignmentRepository,
	userRepository repository.UserRepository,
	clock clockwork.Clock,
	defaultPlanID int64,
) *PlanService {
	return &PlanService{
		planRepository:       planRepository,
		assignmentRepository: assignmentRepository,
		userRepository:       userRepository,
		clock:                clock,
		defaultPlanID:        defaultPlanID,
	}
}

// CatalogFromPlans renders plans in the plans file format.
func CatalogFromPlans(plans []*model.AccountPlan) Catalog {
	catalog := Catalog{Plans: make([]CatalogPlan, 0, len(plans))}
	for _, p := range plans {
		entry := CatalogPlan{
			ID:             p.ID,
			Name:           p.Name,
			Original:       p.CanViewOriginal,
			ExpirableLinks: p.CanCreateExpirableLinks,
			Sizes:          make([]CatalogSize, 0, len(p.Sizes)),
		}
		for _, size := range p.Sizes {
			entry.Sizes = append(entry.Sizes, CatalogSize{Width: size.Width, Height: size.Height})
		}
		catalog.Plans = append(catalog.Plans, entry)
	}
	return catalog
}

// ParseCatalog decodes and validates a plans file. Unknown keys are rejected.
func ParseCatalog(r io.Reader) ([]*model.AccountPlan, error) {
	var catalog Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(&catalog)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "catalog", Reason: err.Error()}
	}

	seen := make(map[int64]bool, len(catalog.Plans))
	plans := make([]*model.AccountPlan, 0, len(catalog.Plans))
	for i, p := range catalog.Plans {
		switch {
		case p.ID <= 0:
			return nil, &ValidationError{Field: fmt.Sprintf("plans[%d].id", i), Reason: "must be positive"}
		case seen[p.ID]:
			return nil, &ValidationError{Field: fmt.Sprintf("plans[%d].id", i), Reason: fmt.Sprintf("duplicate id %d", p.ID)}
		case p.Name == "":
			return nil, &ValidationError{Field: fmt.Sprintf("plans[%d].name", i), Reason: "is required"}
		}
		seen[p.ID] = true

		plan := &model.AccountPlan{
			ID:                      p.ID,
			Name:                    p.Name,
			CanViewOriginal:         p.Original,
			CanCreateExpirableLinks: p.ExpirableLinks,
			Sizes:                   []model.ThumbnailSize{},
		}

		sizes := make(map[string]bool, len(p.Sizes))
		for j, cs := range p.Sizes {
			size := model.ThumbnailSize{Width: cs.Width, Height: cs.Height}
			if !size.Valid() {
				return nil, &ValidationError{Field: fmt.Sprintf("plans[%d].sizes[%d]", i, j), Reason: "width and height must be positive"}
			}
			size.ID = size.Descriptor()
			if sizes[size.ID] {
				continue
			}
			sizes[size.ID] = true
			plan.Sizes = append(plan.Sizes, size)
		}

		plans = append(plans, plan)
	}
	return plans, nil
}

// SyncFile reads a plans file and applies it with Sync.
func (s *PlanService) SyncFile(ctx context.Context, path string, prune bool) (*SyncResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plans file: %w", err)
	}
	defer f.Close()

	plans, err := ParseCatalog(f)
	if err != nil {
		return nil, err
	}
	return s.Sync(ctx, plans, prune)
}

// Sync upserts every plan. With prune, plans missing from the list are deleted,
// except the default plan; their users fall back to the default plan.
func (s *PlanService) Sync(ctx context.Context, plans []*model.AccountPlan, prune bool) (*SyncResult, error) {
	result := &SyncResult{}
	wanted := make(map[int64]bool, len(plans))

	for _, plan := range plans {
		err := s.planRepository.Upsert(ctx, plan)
		if err != nil {
			return result, fmt.Errorf("failed to sync plan %d: %w", plan.ID, err)
		}
		wanted[plan.ID] = true
		result.Upserted = append(result.Upserted, plan.ID)
	}

	if !prune {
		return result, nil
	}

	existing, err := s.planRepository.All(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list plans: %w", err)
	}

	_, err = s.planRepository.ByID(ctx, s.defaultPlanID)
	if err != nil {
		return result, fmt.Errorf("default plan %d must exist before pruning: %w", s.defaultPlanID, err)
	}

	for _, plan := range existing {
		if wanted[plan.ID] || plan.ID == s.defaultPlanID {
			continue
		}
		err = s.planRepository.Delete(ctx, plan.ID, s.defaultPlanID, s.clock.Now().UTC())
		if err != nil && !errors.Is(err, repository.ErrPlanNotFound) {
			return result, fmt.Errorf("failed to delete plan %d: %w", plan.ID, err)
		}
		result.Deleted = append(result.Deleted, plan.ID)
	}

	slog.Info("plan catalog synced", "upserted", len(result.Upserted), "deleted", len(result.Deleted))
	return result, nil
}

func (s *PlanService) List(ctx context.Context) ([]*model.AccountPlan, error) {
	plans, err := s.planRepository.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// Assign binds a user to a plan, replacing any previous assignment.
func (s *PlanService) Assign(ctx context.Context, userID string, planID int64) error {
	_, err := s.userRepository.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return &NotFoundError{Resource: "user"}
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	_, err = s.planRepository.ByID(ctx, planID)
	if errors.Is(err, repository.ErrPlanNotFound) {
		return &NotFoundError{Resource: "plan"}
	}
	if err != nil {
		return fmt.Errorf("failed to get plan: %w", err)
	}

	err = s.assignmentRepository.SetPlan(ctx, userID, planID, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to assign plan: %w", err)
	}

	slog.Info("plan assigned", "user_id", userID, "plan_id", planID)
	return nil
}
