// Command seed populates the database with demo groups, users and posts.
package main

import (
	"context"
	"flag"
	"log"

	"pivot/internal/bootstrap"
	"pivot/internal/config"
	"pivot/internal/seed"

	"github.com/joho/godotenv"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	comments := flag.Int("comments", 3, "Comments per post")
	follows := flag.Int("follows", 5, "Follow attempts per user")
	maxDays := flag.Int("days", 90, "Spread post dates over this many past days")
	randomSeed := flag.Int64("seed", 0, "Random seed for a reproducible run (0 = random)")
	groupsFile := flag.String("groups", "", "YAML file of groups to upsert instead of the defaults")
	shouldClean := flag.Bool("clean", false, "Delete users and their content before seeding")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := seed.Options{
		NumUsers:        *numUsers,
		NumPosts:        *numPosts,
		CommentsPerPost: *comments,
		FollowsPerUser:  *follows,
		MaxDays:         *maxDays,
		RandomSeed:      *randomSeed,
		FastHash:        !cfg.IsProduction(),
		ShouldClean:     *shouldClean,
	}
	if *groupsFile != "" {
		opts.Groups, err = seed.LoadGroups(*groupsFile)
		if err != nil {
			log.Fatalf("Failed to load groups: %v", err)
		}
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	summary, err := seed.Seed(ctx, rt.DB, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d groups, %d users, %d posts, %d comments, %d follows",
		summary.Groups, summary.Users, summary.Posts, summary.Comments, summary.Follows)
	log.Printf("All seeded users have the password: %s", seed.Password)
}
