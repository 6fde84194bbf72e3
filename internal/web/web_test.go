package web

import (
	"bytes"
	"testing"
	"time"

	"pivot/internal/feed"
	"pivot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, name string, data any) string {
	t.Helper()
	engine := NewEngine()
	require.NoError(t, engine.Load())
	var buf bytes.Buffer
	require.NoError(t, engine.Render(&buf, name, data))
	return buf.String()
}

func TestMediaURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", MediaURL(""))
	assert.Equal(t, "/media/posts/a.gif", MediaURL("posts/a.gif"))
	assert.Equal(t, "/media/posts/a.gif", MediaURL("/posts/a.gif"))
}

func TestLinebreaks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"one", "two"}, Linebreaks("one\r\n\r\ntwo\n  \n"))
	assert.Empty(t, Linebreaks(""))
}

func TestPostInclude(t *testing.T) {
	t.Parallel()

	post := models.Post{
		ID:        7,
		Text:      "first line\nsecond <b>line</b>",
		Image:     "posts/x.gif",
		CreatedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Author:    models.User{Username: "leo"},
		Group:     &models.Group{Slug: "cats", Title: "Cats"},
	}
	out := render(t, "includes/post", post)

	assert.Contains(t, out, `href="/profile/leo/"`)
	assert.Contains(t, out, "5 March 2024")
	assert.Contains(t, out, `src="/media/posts/x.gif"`)
	assert.Contains(t, out, "<p>first line</p>")
	assert.Contains(t, out, "second &lt;b&gt;line&lt;/b&gt;")
	assert.Contains(t, out, `href="/posts/7/"`)
	assert.Contains(t, out, `href="/group/cats/"`)
}

func TestPaginatorInclude(t *testing.T) {
	t.Parallel()

	single := render(t, "includes/paginator", feed.Paginate(3, 10, "1"))
	assert.NotContains(t, single, "pagination")

	middle := render(t, "includes/paginator", feed.Paginate(25, 10, "2"))
	assert.Contains(t, middle, `<span class="current">2</span>`)
	assert.Contains(t, middle, `href="?page=1"`)
	assert.Contains(t, middle, `href="?page=3"`)
	assert.Contains(t, middle, "Next")
	assert.Contains(t, middle, "Previous")
}

func TestNotFoundTemplate(t *testing.T) {
	t.Parallel()

	out := render(t, "core/404", map[string]any{"Path": "/nowhere/"})
	assert.Contains(t, out, "The page /nowhere/ does not exist.")
}
