package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"

	"qc-standards/internal/config"
	"qc-standards/internal/database"
	"qc-standards/internal/handlers"
	"qc-standards/internal/logging"
	"qc-standards/internal/middleware"
	"qc-standards/internal/photostore"
	"qc-standards/internal/server"
	"qc-standards/internal/service"
	"qc-standards/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, os.Stdout)
	if strings.EqualFold(cfg.ServerMode, gin.ReleaseMode) {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN, cfg.DBConnectAttempts, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	st := database.New(db)

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadsDir).Msg("cannot create uploads dir")
	}
	files := photostore.New(afero.NewBasePathFs(afero.NewOsFs(), cfg.UploadsDir), cfg.AllowedExtensions, cfg.MaxUploadSize)

	auth := service.NewAuthService(st, token.NewIssuer(cfg.JWTSecret, cfg.JWTExpireHours), log)
	ctx := context.Background()
	if err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("admin seeding failed")
	}
	if cfg.SeedDemoUsers {
		if err := auth.EnsureDemoUsers(ctx); err != nil {
			log.Fatal().Err(err).Msg("demo user seeding failed")
		}
	}

	h := &handlers.Handler{
		Auth:       auth,
		Users:      service.NewUserService(st, auth, log),
		Catalog:    service.NewCatalogService(st, log),
		Templates:  service.NewTemplateService(st, log),
		Checklists: service.NewChecklistService(st, files, log),
		Sync:       service.NewSyncService(st, log),
		Photos:     service.NewPhotoService(st, files, log, "/api/v1/files"),
		Audit:      service.NewAuditService(st),
		LoginThrottle: &middleware.Throttle{
			Limiter: newLimiter(cfg, log),
			Limit:   cfg.LoginRateLimit,
			Window:  cfg.LoginRateWindow,
			Log:     log,
		},
		Log:             log,
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	}

	r := server.NewRouter(cfg, h, auth, log)

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Info().Str("addr", addr).Str("driver", cfg.DBDriver).Msg("starting server")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
