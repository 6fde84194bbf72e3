// Package seed populates the database with demo data for development.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"pivot/internal/middleware"
	"pivot/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers        int
	NumPosts        int
	CommentsPerPost int
	FollowsPerUser  int
	MaxDays         int
	BatchSize       int
	// RandomSeed makes a run reproducible when non-zero.
	RandomSeed int64
	// FastHash hashes the shared password with the minimum bcrypt cost.
	FastHash bool
	// ShouldClean deletes posts, comments, follows, tokens and users first.
	ShouldClean bool
	// Groups to upsert; DefaultGroups when empty.
	Groups []GroupFixture
}

// Summary counts what a Seed run wrote.
type Summary struct {
	Groups   int
	Users    int
	Posts    int
	Comments int
	Follows  int
}

// Seed populates the database with groups, users, posts, comments and
// follows.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	db = db.WithContext(ctx)
	log := middleware.Logger.With(slog.String("component", "seed"))
	log.Info("starting database seeding",
		slog.Int("users", opts.NumUsers),
		slog.Int("posts", opts.NumPosts),
	)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("clear existing data: %w", err)
		}
	}

	fixtures := opts.Groups
	if len(fixtures) == 0 {
		fixtures = DefaultGroups
	}
	groups, err := Groups(db, fixtures)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Groups: len(groups)}

	f, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}

	var offset int64
	if err := db.Model(&models.User{}).Count(&offset).Error; err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := f.CreateUser(int(offset) + i + 1)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, user)
	}
	summary.Users = len(users)
	if len(users) == 0 {
		log.Info("no users to author content; done", slog.Int("groups", summary.Groups))
		return summary, nil
	}

	posts := make([]*models.Post, 0, opts.NumPosts)
	for i := 0; i < opts.NumPosts; i++ {
		author := users[f.faker.Number(0, len(users)-1)]
		posts = append(posts, f.BuildPost(author, groups))
	}
	if err := f.CreatePostsBatch(posts); err != nil {
		return nil, fmt.Errorf("create posts: %w", err)
	}
	summary.Posts = len(posts)

	var comments []*models.Comment
	for _, post := range posts {
		for j := 0; j < opts.CommentsPerPost; j++ {
			author := users[f.faker.Number(0, len(users)-1)]
			comments = append(comments, f.BuildComment(author, post))
		}
	}
	if err := f.CreateCommentsBatch(comments); err != nil {
		return nil, fmt.Errorf("create comments: %w", err)
	}
	summary.Comments = len(comments)

	for _, user := range users {
		for j := 0; j < opts.FollowsPerUser; j++ {
			author := users[f.faker.Number(0, len(users)-1)]
			created, err := f.CreateFollow(user, author)
			if err != nil {
				return nil, fmt.Errorf("create follow: %w", err)
			}
			if created {
				summary.Follows++
			}
		}
	}

	log.Info("database seeding completed",
		slog.Int("groups", summary.Groups),
		slog.Int("users", summary.Users),
		slog.Int("posts", summary.Posts),
		slog.Int("comments", summary.Comments),
		slog.Int("follows", summary.Follows),
	)
	return summary, nil
}

// clearData deletes rows child tables first so it works on any driver.
func clearData(db *gorm.DB) error {
	middleware.Logger.Info("clearing existing data")
	return db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Comment{}, &models.Post{}, &models.Follow{}, &models.AuthToken{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
