package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/templui/pixelplan/internal/config"
	"github.com/templui/pixelplan/internal/db"
	"github.com/templui/pixelplan/internal/repository"
	"github.com/templui/pixelplan/internal/service"
	"github.com/templui/pixelplan/internal/storage"
)

type App struct {
	Cfg     *config.Config
	DB      *sqlx.DB
	Storage storage.Storage
	Clock   clockwork.Clock

	ImageRepository repository.ImageRepository

	AuthService        *service.AuthService
	EntitlementService *service.EntitlementService
	AccessService      *service.AccessService
	ThumbnailService   *service.ThumbnailService
	ImageService       *service.ImageService
	LinkService        *service.LinkService
	PlanService        *service.PlanService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return NewWithClock(ctx, cfg, clockwork.NewRealClock())
}

// NewWithClock wires the application against the given clock.
func NewWithClock(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*App, error) {
	// Initialize database
	database, err := db.Init(ctx, cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.AutoMigrate {
		err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Storage
	fileStorage, err := storage.New(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	imageRepository := repository.NewImageRepository(database)
	thumbnailRepository := repository.NewThumbnailRepository(database)
	planRepository := repository.NewPlanRepository(database)
	assignmentRepository := repository.NewAssignmentRepository(database)
	linkRepository := repository.NewLinkRepository(database)

	// Services
	authService := service.NewAuthService(userRepository, clock, cfg.JWTSecret, cfg.JWTExpiry, cfg.IsProduction())
	entitlementService := service.NewEntitlementService(planRepository, assignmentRepository, clock, cfg.DefaultPlanID)
	accessService := service.NewAccessService(entitlementService)
	thumbnailService := service.NewThumbnailService(
		thumbnailRepository,
		imageRepository,
		entitlementService,
		fileStorage,
		clock,
		cfg.ThumbnailQuality,
	)
	imageService := service.NewImageService(
		imageRepository,
		thumbnailRepository,
		thumbnailService,
		accessService,
		fileStorage,
		clock,
		cfg.MaxUploadSize,
	)
	linkService := service.NewLinkService(
		linkRepository,
		imageRepository,
		accessService,
		fileStorage,
		clock,
		cfg.LinkMinDuration,
		cfg.LinkMaxDuration,
	)
	planService := service.NewPlanService(planRepository, assignmentRepository, userRepository, clock, cfg.DefaultPlanID)

	if cfg.PlansFile != "" {
		result, err := planService.SyncFile(ctx, cfg.PlansFile, false)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to sync plans: %w", err)
		}
		slog.Info("plans synced", "file", cfg.PlansFile, "upserted", result.Upserted, "deleted", result.Deleted)
	}

	return &App{
		Cfg:                cfg,
		DB:                 database,
		Storage:            fileStorage,
		Clock:              clock,
		ImageRepository:    imageRepository,
		AuthService:        authService,
		EntitlementService: entitlementService,
		AccessService:      accessService,
		ThumbnailService:   thumbnailService,
		ImageService:       imageService,
		LinkService:        linkService,
		PlanService:        planService,
	}, nil
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
