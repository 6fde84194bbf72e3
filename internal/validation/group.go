package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	MaxGroupSlugLength  = 50
	MaxGroupTitleLength = 200
)

var groupSlugRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidateGroupSlug accepts lowercase letters, digits, hyphens and underscores.
func ValidateGroupSlug(slug string) error {
	if slug == "" {
		return errors.New("slug is required")
	}
	if len(slug) > MaxGroupSlugLength {
		return fmt.Errorf("slug must be at most %d characters", MaxGroupSlugLength)
	}
	if !groupSlugRegex.MatchString(slug) {
		return errors.New("slug may contain only lowercase letters, numbers, hyphens and underscores")
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return errors.New("slug cannot start or end with a hyphen")
	}
	return nil
}

// ValidateGroupTitle requires a non-blank title of at most 200 characters.
func ValidateGroupTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title is required")
	}
	if len([]rune(title)) > MaxGroupTitleLength {
		return fmt.Errorf("title must be at most %d characters", MaxGroupTitleLength)
	}
	return nil
}
