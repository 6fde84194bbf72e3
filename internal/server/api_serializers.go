package server

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pivot/internal/models"
	"pivot/internal/web"

	"github.com/gofiber/fiber/v2"
)

type postResponse struct {
	ID      uint      `json:"id"`
	Author  string    `json:"author"`
	Text    string    `json:"text"`
	PubDate time.Time `json:"pub_date"`
	Image   *string   `json:"image"`
	Group   *uint     `json:"group"`
}

type commentResponse struct {
	ID      uint      `json:"id"`
	Author  string    `json:"author"`
	Post    uint      `json:"post"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
}

type followResponse struct {
	User      string `json:"user"`
	Following string `json:"following"`
}

type paginatedResponse struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  any     `json:"results"`
}

func toPostResponse(c *fiber.Ctx, p *models.Post) postResponse {
	resp := postResponse{
		ID:      p.ID,
		Author:  p.Author.Username,
		Text:    p.Text,
		PubDate: p.CreatedAt,
		Group:   p.GroupID,
	}
	if p.Image != "" {
		image := c.BaseURL() + web.MediaURL(p.Image)
		resp.Image = &image
	}
	return resp
}

func toPostResponses(c *fiber.Ctx, posts []models.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for i := range posts {
		out = append(out, toPostResponse(c, &posts[i]))
	}
	return out
}

func toCommentResponse(cm *models.Comment) commentResponse {
	return commentResponse{
		ID:      cm.ID,
		Author:  cm.Author.Username,
		Post:    cm.PostID,
		Text:    cm.Text,
		Created: cm.CreatedAt,
	}
}

func toCommentResponses(comments []models.Comment) []commentResponse {
	out := make([]commentResponse, 0, len(comments))
	for i := range comments {
		out = append(out, toCommentResponse(&comments[i]))
	}
	return out
}

// pageLinks builds the next and previous URLs of a limit/offset listing.
func pageLinks(c *fiber.Ctx, p limitOffset, count int64) (next, previous *string) {
	link := func(offset int) *string {
		q := url.Values{}
		for k, v := range c.Queries() {
			q.Set(k, v)
		}
		q.Set("limit", strconv.Itoa(p.Limit))
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		} else {
			q.Del("offset")
		}
		u := c.BaseURL() + c.Path() + "?" + q.Encode()
		return &u
	}

	if int64(p.Offset+p.Limit) < count {
		next = link(p.Offset + p.Limit)
	}
	if p.Offset > 0 {
		previous = link(max(p.Offset-p.Limit, 0))
	}
	return next, previous
}

// decodeImageField accepts raw base64 or a data URL.
func decodeImageField(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "data:") {
		if _, payload, ok := strings.Cut(raw, ";base64,"); ok {
			raw = payload
		}
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, models.NewValidationError("image: Upload a valid image")
	}
	return data, nil
}

// decodeGroupField reads a nullable group id. set reports whether the field
// was present at all.
func decodeGroupField(raw json.RawMessage) (groupID *uint, set bool, err error) {
	if len(raw) == 0 {
		return nil, false, nil
	}
	if string(raw) == "null" {
		return nil, true, nil
	}
	var id uint
	if err := json.Unmarshal(raw, &id); err != nil || id == 0 {
		return nil, true, models.NewValidationError("group: Incorrect type. Expected pk value")
	}
	return &id, true, nil
}
