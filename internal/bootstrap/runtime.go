// Package bootstrap opens the external dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pivot/internal/auth"
	"pivot/internal/cache"
	"pivot/internal/config"
	"pivot/internal/database"
	"pivot/internal/media"
	"pivot/internal/middleware"
	"pivot/internal/observability"
	"pivot/internal/repository"
	"pivot/internal/seed"
	"pivot/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedGroups upserts seed.DefaultGroups after connecting.
	SeedGroups bool
}

// Runtime holds the connections a command needs. Redis and Media are nil
// when unavailable or not configured.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Media media.Store
}

// InitRuntime connects to the database, Redis and the object store.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := observability.RegisterDatabaseMetrics(db); err != nil {
		middleware.Logger.Warn("database metrics unavailable", slog.String("error", err.Error()))
	}

	// Init Redis (nil client if unreachable; the page cache then runs in memory)
	rt := &Runtime{DB: db, Redis: cache.InitRedis(cfg.RedisURL)}

	store, err := initMedia(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if store != nil {
		rt.Media = store
	}

	if err := ensureDevStaff(ctx, cfg, db); err != nil {
		return nil, fmt.Errorf("failed to bootstrap development staff user: %w", err)
	}

	if opts.SeedGroups {
		if _, err := seed.Groups(db.WithContext(ctx), seed.DefaultGroups); err != nil {
			return nil, fmt.Errorf("failed to seed default groups: %w", err)
		}
	}

	return rt, nil
}

func initMedia(ctx context.Context, cfg *config.Config) (*media.MinioStore, error) {
	if !cfg.MediaEnabled() {
		middleware.Logger.Info("media storage not configured; image uploads disabled")
		return nil, nil
	}
	store, err := media.NewMinioStore(media.ConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("media storage: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("media bucket %s: %w", cfg.MediaBucket, err)
	}
	return store, nil
}

// ensureDevStaff creates or promotes DEV_STAFF_USERNAME in development so a
// fresh database has an account that can flush the page cache.
func ensureDevStaff(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}
	username := strings.TrimSpace(cfg.DevStaffUsername)
	if username == "" {
		return nil
	}
	if cfg.DevStaffPassword == "" {
		return fmt.Errorf("DEV_STAFF_PASSWORD must be set when DEV_STAFF_USERNAME is")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	svc := service.NewAuthService(repository.NewUserRepository(db), repository.NewTokenRepository(db), tokens)
	user, created, err := svc.EnsureStaff(ctx, username, cfg.DevStaffPassword)
	if err != nil {
		return err
	}
	middleware.Logger.Info("development staff user ensured",
		slog.String("username", user.Username),
		slog.Bool("created", created),
	)
	return nil
}
