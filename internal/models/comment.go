package models

import (
	"time"
)

// Comment is a reply to a post. Comments on a post are listed oldest first.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"index" json:"created"`
	UpdatedAt time.Time `json:"-"`
	AuthorID  uint      `gorm:"not null;index" json:"-"`
	Author    User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"-"`
	PostID    uint      `gorm:"not null;index" json:"post"`
}

func (c *Comment) String() string {
	return Truncate(c.Text, postPreviewLen)
}
