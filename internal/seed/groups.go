package seed

import (
	"fmt"
	"os"

	"pivot/internal/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupFixture describes a group to create or refresh.
type GroupFixture struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

// DefaultGroups are created when no fixture file is given.
var DefaultGroups = []GroupFixture{
	{Title: "Cats", Slug: "cats", Description: "Photos and stories about cats."},
	{Title: "Books", Slug: "books", Description: "What we are reading and why."},
	{Title: "Travel", Slug: "travel", Description: "Trips, routes and places worth the detour."},
	{Title: "Cooking", Slug: "cooking", Description: "Recipes and kitchen experiments."},
	{Title: "Programming", Slug: "programming", Description: "Code, tools and war stories."},
}

type groupFile struct {
	Groups []GroupFixture `yaml:"groups"`
}

// LoadGroups reads a YAML fixture of the form:
//
//	groups:
//	  - title: Cats
//	    slug: cats
//	    description: Photos and stories about cats.
func LoadGroups(path string) ([]GroupFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read group fixture: %w", err)
	}
	return ParseGroups(raw)
}

// ParseGroups decodes a YAML group fixture.
func ParseGroups(raw []byte) ([]GroupFixture, error) {
	var file groupFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse group fixture: %w", err)
	}
	for i, g := range file.Groups {
		if g.Slug == "" || g.Title == "" {
			return nil, fmt.Errorf("group fixture entry %d: title and slug are required", i)
		}
	}
	return file.Groups, nil
}

// Groups upserts the fixtures by slug and returns the stored groups.
func Groups(db *gorm.DB, items []GroupFixture) ([]models.Group, error) {
	groups := make([]models.Group, 0, len(items))
	for _, item := range items {
		group := models.Group{
			Title:       item.Title,
			Slug:        item.Slug,
			Description: item.Description,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "description"}),
		}).Create(&group).Error; err != nil {
			return nil, fmt.Errorf("seed group %s: %w", item.Slug, err)
		}
		if group.ID == 0 {
			if err := db.Where("slug = ?", item.Slug).First(&group).Error; err != nil {
				return nil, err
			}
		}
		groups = append(groups, group)
	}
	return groups, nil
}
