// Command admin runs maintenance tasks: page cache flushes, staff accounts
// and groups.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"pivot/internal/auth"
	"pivot/internal/bootstrap"
	"pivot/internal/cache"
	"pivot/internal/config"
	"pivot/internal/models"
	"pivot/internal/repository"
	"pivot/internal/service"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  admin flush-cache                         - Drop every cached page in Redis")
	fmt.Println("  admin create-staff <username> [password]  - Create or promote a staff user (default password: $ADMIN_PASSWORD)")
	fmt.Println("  admin demote <username>                   - Remove staff rights")
	fmt.Println("  admin list-staff                          - List staff users")
	fmt.Println("  admin create-group <slug> <title> [desc]  - Create a group")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "flush-cache":
		err = flushCache(ctx, rt)
	case "create-staff":
		if len(args) < 1 {
			usage()
			os.Exit(1)
		}
		password := os.Getenv("ADMIN_PASSWORD")
		if len(args) > 1 {
			password = args[1]
		}
		err = createStaff(ctx, cfg, rt.DB, args[0], password)
	case "demote":
		if len(args) < 1 {
			usage()
			os.Exit(1)
		}
		err = demote(rt.DB, args[0])
	case "list-staff":
		err = listStaff(rt.DB)
	case "create-group":
		if len(args) < 2 {
			usage()
			os.Exit(1)
		}
		in := service.CreateGroupInput{Slug: args[0], Title: args[1]}
		if len(args) > 2 {
			in.Description = strings.Join(args[2:], " ")
		}
		err = createGroup(ctx, rt.DB, in)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func flushCache(ctx context.Context, rt *bootstrap.Runtime) error {
	if rt.Redis == nil {
		return errors.New("redis is unavailable; in-memory page caches can only be flushed through the API")
	}
	if err := cache.NewRedisPageCache(rt.Redis, cache.PageNamespace).Flush(ctx); err != nil {
		return fmt.Errorf("flush page cache: %w", err)
	}
	fmt.Println("Page cache flushed")
	return nil
}

func createStaff(ctx context.Context, cfg *config.Config, db *gorm.DB, username, password string) error {
	if password == "" {
		return errors.New("a password argument or ADMIN_PASSWORD is required")
	}
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL())
	svc := service.NewAuthService(repository.NewUserRepository(db), repository.NewTokenRepository(db), tokens)
	user, created, err := svc.EnsureStaff(ctx, username, password)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created staff user %s (ID: %d)\n", user.Username, user.ID)
	} else {
		fmt.Printf("User %s (ID: %d) is staff\n", user.Username, user.ID)
	}
	return nil
}

func demote(db *gorm.DB, username string) error {
	res := db.Model(&models.User{}).Where("username = ?", username).Update("is_staff", false)
	if res.Error != nil {
		return fmt.Errorf("database error: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s not found", username)
	}
	fmt.Printf("User %s is no longer staff\n", username)
	return nil
}

func listStaff(db *gorm.DB) error {
	var staff []models.User
	if err := db.Where("is_staff = ?", true).Order("username").Find(&staff).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if len(staff) == 0 {
		fmt.Println("No staff users")
		return nil
	}
	fmt.Printf("%-6s %s\n", "ID", "USERNAME")
	for _, u := range staff {
		fmt.Printf("%-6d %s\n", u.ID, u.Username)
	}
	return nil
}

func createGroup(ctx context.Context, db *gorm.DB, in service.CreateGroupInput) error {
	group, err := service.NewGroupService(repository.NewGroupRepository(db)).CreateGroup(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("Created group %s (ID: %d)\n", group.Slug, group.ID)
	return nil
}
