package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pivot/internal/config"
	"pivot/internal/middleware"
	"pivot/internal/models"

	"gorm.io/gorm"
)

// Schema modes selected by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan says which of the two schema mechanisms run at startup.
type SchemaPlan struct {
	Mode string
	// SQL runs the embedded migrations. They are written for PostgreSQL.
	SQL bool
	// Auto runs GORM AutoMigrate over the models.
	Auto bool
}

// PlanSchema resolves cfg into a plan. SQLite always uses AutoMigrate, and
// production never does.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		mode = SchemaModeHybrid
	}
	plan := SchemaPlan{Mode: mode}

	if cfg.DBDriver == "sqlite" {
		plan.Auto = true
		return plan, nil
	}
	switch mode {
	case SchemaModeSQL:
		plan.SQL = true
	case SchemaModeHybrid:
		plan.SQL, plan.Auto = true, !cfg.IsProduction()
	case SchemaModeAuto:
		if cfg.IsProduction() {
			return plan, fmt.Errorf("DB_SCHEMA_MODE=auto is not allowed in %s", cfg.Env)
		}
		plan.Auto = true
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
	return plan, nil
}

// AutoMigrate creates or alters the tables of every persisted model.
// Referenced tables come first.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.Post{},
		&models.Comment{},
		&models.Follow{},
		&models.AuthToken{},
	)
}

// ApplySchema brings the schema up to date as PlanSchema decides.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}
	if plan.SQL {
		n, err := NewMigrator(db, Embedded).Up(ctx)
		if err != nil {
			return err
		}
		middleware.Logger.Info("sql migrations done", slog.Int("applied", n))
	}
	if plan.Auto {
		middleware.Logger.Info("running automigrate", slog.String("mode", plan.Mode), slog.String("env", cfg.Env))
		if err := AutoMigrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
	}
	return nil
}

// SchemaStatus is a SchemaPlan plus the migration bookkeeping.
type SchemaStatus struct {
	SchemaPlan
	Env     string
	Applied []int
	Pending []Migration
}

// Status reports the plan for cfg and, when SQL migrations are in play,
// which of them have run.
func Status(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{SchemaPlan: plan, Env: cfg.Env}
	if !plan.SQL {
		return status, nil
	}

	m := NewMigrator(db, Embedded)
	if status.Applied, err = m.Applied(ctx); err != nil {
		return nil, err
	}
	if status.Pending, err = m.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
