package seed

import (
	"fmt"
	"strings"
	"time"

	"pivot/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Password is the plain-text password of every seeded user.
const Password = "pivot-demo-pass"

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by Seed and tests.
type Factory struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	now    time.Time
	hashed string
}

// NewFactory creates a Factory bound to db. A zero opts.RandomSeed seeds
// from the clock.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cost := bcrypt.DefaultCost
	if opts.FastHash {
		cost = bcrypt.MinCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}
	return &Factory{
		db:     db,
		opts:   opts,
		faker:  gofakeit.New(seed),
		now:    time.Now(),
		hashed: string(hashed),
	}, nil
}

// BuildUser constructs a user without saving it. n keeps usernames unique
// within one run.
func (f *Factory) BuildUser(n int) *models.User {
	first, last := f.faker.FirstName(), f.faker.LastName()
	username := strings.ToLower(fmt.Sprintf("%s.%s%d", first, last, n))
	username = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\'' {
			return -1
		}
		return r
	}, username)
	email := username + "@example.com"
	return &models.User{
		Username:  username,
		Email:     &email,
		Password:  f.hashed,
		FirstName: first,
		LastName:  last,
	}
}

// CreateUser constructs and persists a user. Optional overrides may modify
// the generated user before saving.
func (f *Factory) CreateUser(n int, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(n)
	for _, override := range overrides {
		override(user)
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// BuildPost constructs a post by author dated within opts.MaxDays, filed
// under one of groups about two times in three.
func (f *Factory) BuildPost(author *models.User, groups []models.Group) *models.Post {
	post := &models.Post{
		Text:     f.faker.Paragraph(1, f.faker.Number(1, 4), 12, "\n"),
		AuthorID: author.ID,
	}
	post.CreatedAt = f.pastTime()
	post.UpdatedAt = post.CreatedAt
	if len(groups) > 0 && f.faker.Number(0, 2) > 0 {
		g := groups[f.faker.Number(0, len(groups)-1)]
		post.GroupID = &g.ID
	}
	return post
}

// CreatePostsBatch persists posts in batches of opts.BatchSize.
func (f *Factory) CreatePostsBatch(posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return f.db.Omit("Author", "Group").CreateInBatches(posts, f.batchSize()).Error
}

// BuildComment constructs a comment by author on post, dated after the post.
func (f *Factory) BuildComment(author *models.User, post *models.Post) *models.Comment {
	created := post.CreatedAt.Add(time.Duration(f.faker.Number(1, 72*60)) * time.Minute)
	if created.After(f.now) {
		created = f.now
	}
	return &models.Comment{
		Text:      f.faker.Sentence(f.faker.Number(4, 16)),
		AuthorID:  author.ID,
		PostID:    post.ID,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// CreateCommentsBatch persists comments in batches of opts.BatchSize.
func (f *Factory) CreateCommentsBatch(comments []*models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return f.db.Omit("Author").CreateInBatches(comments, f.batchSize()).Error
}

// CreateFollow inserts the edge user -> author unless it exists or is a
// self-follow. It reports whether a row was written.
func (f *Factory) CreateFollow(user, author *models.User) (bool, error) {
	if user.ID == author.ID {
		return false, nil
	}
	var count int64
	if err := f.db.Model(&models.Follow{}).
		Where("user_id = ? AND author_id = ?", user.ID, author.ID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	follow := &models.Follow{UserID: user.ID, AuthorID: author.ID}
	if err := f.db.Omit("User", "Author").Create(follow).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	back := time.Duration(f.faker.Number(0, maxDays*24*60)) * time.Minute
	return f.now.Add(-back)
}

func (f *Factory) batchSize() int {
	if f.opts.BatchSize > 0 {
		return f.opts.BatchSize
	}
	return 100
}
