package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pivot/internal/middleware"
	"pivot/internal/models"
	"pivot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexPage_ServesCachedContentUntilExpiry(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	doomed := testutil.CreatePost(t, e.db, author, nil, "soon to be deleted")

	resp := e.get(t, "/")
	assert.Equal(t, "MISS", resp.Header.Get(middleware.PageCacheHeader))
	before := readBody(t, resp)
	require.Contains(t, before, "soon to be deleted")

	require.NoError(t, e.server.postService.DeletePost(context.Background(), author, doomed.ID))

	resp = e.get(t, "/")
	assert.Equal(t, "HIT", resp.Header.Get(middleware.PageCacheHeader))
	after := readBody(t, resp)
	assert.Equal(t, before, after, "index must not be invalidated by writes")

	e.clock.Advance(21 * time.Second)
	expired := readBody(t, e.get(t, "/"))
	assert.NotEqual(t, before, expired)
	assert.NotContains(t, expired, "soon to be deleted")
}

func TestIndexPage_FlushShowsNewPosts(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	staff := testutil.CreateStaff(t, e.db, "editor")

	first := readBody(t, e.get(t, "/"))
	assert.Contains(t, first, "No posts yet.")

	testutil.CreatePost(t, e.db, author, nil, "hot off the press")
	assert.Equal(t, first, readBody(t, e.get(t, "/")))

	resp := e.sendJSON(t, http.MethodPost, "/api/v1/admin/cache/flush", nil, withBearer(e.bearerFor(t, staff)))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, readBody(t, e.get(t, "/")), "hot off the press")
}

func TestIndexPage_LayoutFollowsViewer(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	viewer := testutil.CreateUser(t, e.db, "reader")
	testutil.CreatePost(t, e.db, viewer, nil, "hello")

	anon := readBody(t, e.get(t, "/"))
	assert.Contains(t, anon, "Log in")
	assert.NotContains(t, anon, "Write a post")

	signedIn := readBody(t, e.get(t, "/", withSession(e.sessionFor(t, viewer))))
	assert.Contains(t, signedIn, "Log out")
	assert.Contains(t, signedIn, "/profile/reader/")
	assert.Contains(t, signedIn, "Write a post")
}

func TestIndexPage_Pagination(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	testutil.CreatePosts(t, e.db, author, nil, 13)

	tests := []struct {
		query string
		items int
	}{
		{query: "", items: 10},
		{query: "?page=2", items: 3},
		{query: "?page=99", items: 3},
		{query: "?page=abc", items: 10},
	}
	for _, tt := range tests {
		body := readBody(t, e.get(t, "/"+tt.query))
		assert.Equal(t, tt.items, strings.Count(body, "<article>"), "query %q", tt.query)
	}
}

func TestProfilePage(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	viewer := testutil.CreateUser(t, e.db, "reader")
	testutil.CreatePosts(t, e.db, author, nil, 15)

	resp := e.get(t, "/profile/leo/?page=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Equal(t, 5, strings.Count(body, "<article>"))
	assert.Contains(t, body, "Total posts: 15")
	assert.Contains(t, body, "post 5 by leo")
	assert.NotContains(t, body, "post 6 by leo")

	t.Run("Follow Toggle", func(t *testing.T) {
		body := readBody(t, e.get(t, "/profile/leo/", withSession(e.sessionFor(t, viewer))))
		assert.Contains(t, body, "/profile/leo/follow")

		testutil.CreateFollow(t, e.db, viewer, author)
		body = readBody(t, e.get(t, "/profile/leo/", withSession(e.sessionFor(t, viewer))))
		assert.Contains(t, body, "/profile/leo/unfollow")
	})

	t.Run("Own Profile Has No Toggle", func(t *testing.T) {
		body := readBody(t, e.get(t, "/profile/leo/", withSession(e.sessionFor(t, author))))
		assert.NotContains(t, body, "/profile/leo/follow")
		assert.NotContains(t, body, "/profile/leo/unfollow")
	})

	t.Run("Unknown Author", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, e.get(t, "/profile/nobody/").StatusCode)
	})
}

func TestGroupPage(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	cats := testutil.CreateGroup(t, e.db, "cats")
	testutil.CreatePost(t, e.db, author, cats, "a cat post")
	testutil.CreatePost(t, e.db, author, nil, "an ungrouped post")

	body := readBody(t, e.get(t, "/group/cats/"))
	assert.Contains(t, body, "Group cats")
	assert.Contains(t, body, "a cat post")
	assert.NotContains(t, body, "an ungrouped post")

	assert.Equal(t, http.StatusNotFound, e.get(t, "/group/dogs/").StatusCode)
}

func TestPostDetailPage(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	other := testutil.CreateUser(t, e.db, "reader")
	post := testutil.CreatePost(t, e.db, author, nil, "detail text")
	testutil.CreateComment(t, e.db, other, post, "first comment")
	testutil.CreateComment(t, e.db, author, post, "second comment")

	path := fmt.Sprintf("/posts/%d/", post.ID)

	body := readBody(t, e.get(t, path))
	assert.Contains(t, body, "detail text")
	assert.Less(t, strings.Index(body, "first comment"), strings.Index(body, "second comment"))
	assert.NotContains(t, body, "Edit post")
	assert.NotContains(t, body, "Add a comment")

	body = readBody(t, e.get(t, path, withSession(e.sessionFor(t, author))))
	assert.Contains(t, body, "Edit post")
	assert.Contains(t, body, "Add a comment")

	body = readBody(t, e.get(t, path, withSession(e.sessionFor(t, other))))
	assert.NotContains(t, body, "Edit post")

	assert.Equal(t, http.StatusNotFound, e.get(t, "/posts/9999/").StatusCode)
	assert.Equal(t, http.StatusNotFound, e.get(t, "/posts/abc/").StatusCode)
}

func TestLoginRequired_RedirectsGuests(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	post := testutil.CreatePost(t, e.db, author, nil, "hello")

	assertRedirect(t, e.get(t, "/create/"), "/auth/login/?next=/create/")
	assertRedirect(t, e.get(t, "/follow/?page=2"), "/auth/login/?next=/follow/%3Fpage%3D2")
	assertRedirect(t, e.get(t, "/profile/leo/follow"), "/auth/login/?next=/profile/leo/follow")

	editPath := fmt.Sprintf("/posts/%d/edit/", post.ID)
	assertRedirect(t, e.get(t, editPath), "/auth/login/?next="+editPath)

	commentPath := fmt.Sprintf("/posts/%d/comment", post.ID)
	resp := e.postForm(t, commentPath, url.Values{"text": {"guest comment"}})
	assertRedirect(t, resp, "/auth/login/?next="+commentPath)

	var count int64
	require.NoError(t, e.db.Model(&models.Comment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPostCreate(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	cats := testutil.CreateGroup(t, e.db, "cats")
	session := withSession(e.sessionFor(t, author))

	body := readBody(t, e.get(t, "/create/", session))
	assert.Contains(t, body, "New post")
	assert.Contains(t, body, "Group cats")

	resp := e.postMultipart(t, "/create/", map[string]string{
		"text":  "a new post with a picture",
		"group": fmt.Sprint(cats.ID),
	}, testutil.SmallGIF, session)
	assertRedirect(t, resp, "/profile/leo/")

	var post models.Post
	require.NoError(t, e.db.Where("text = ?", "a new post with a picture").First(&post).Error)
	assert.Equal(t, author.ID, post.AuthorID)
	require.NotNil(t, post.GroupID)
	assert.Equal(t, cats.ID, *post.GroupID)
	require.NotEmpty(t, post.Image)
	obj, ok := e.store.Get(post.Image)
	require.True(t, ok)
	assert.Equal(t, "image/gif", obj.ContentType)

	t.Run("Invalid Form Re-renders", func(t *testing.T) {
		resp := e.postMultipart(t, "/create/", map[string]string{"text": "   "}, nil, session)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), `class="errors"`)
	})

	t.Run("Bad Image Re-renders", func(t *testing.T) {
		resp := e.postMultipart(t, "/create/", map[string]string{"text": "with junk"}, []byte("not an image"), session)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := readBody(t, resp)
		assert.Contains(t, body, `class="errors"`)
		assert.Contains(t, body, "with junk")
	})

	t.Run("Truncated Upload Re-renders", func(t *testing.T) {
		body := "--XYZ\r\n" +
			`Content-Disposition: form-data; name="image"; filename="a.gif"` + "\r\n" +
			"Content-Type: image/gif\r\n\r\nGIF89a"
		req := httptest.NewRequest(http.MethodPost, "/create/", strings.NewReader(body))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=XYZ")
		resp := e.do(t, req, session)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "The submitted file could not be read")
	})

	var count int64
	require.NoError(t, e.db.Model(&models.Post{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPostEdit(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	other := testutil.CreateUser(t, e.db, "mallory")
	cats := testutil.CreateGroup(t, e.db, "cats")
	post := testutil.CreatePost(t, e.db, author, cats, "original text")
	editPath := fmt.Sprintf("/posts/%d/edit/", post.ID)
	detailPath := fmt.Sprintf("/posts/%d/", post.ID)

	t.Run("Non Author Is Quietly Redirected", func(t *testing.T) {
		session := withSession(e.sessionFor(t, other))
		assertRedirect(t, e.get(t, editPath, session), detailPath)

		resp := e.postMultipart(t, editPath, map[string]string{"text": "hijacked"}, nil, session)
		assertRedirect(t, resp, detailPath)

		var stored models.Post
		require.NoError(t, e.db.First(&stored, post.ID).Error)
		assert.Equal(t, "original text", stored.Text)
		require.NotNil(t, stored.GroupID)
		assert.Equal(t, cats.ID, *stored.GroupID)
	})

	t.Run("Author Edits", func(t *testing.T) {
		session := withSession(e.sessionFor(t, author))
		body := readBody(t, e.get(t, editPath, session))
		assert.Contains(t, body, "original text")
		assert.Contains(t, body, "selected")

		resp := e.postMultipart(t, editPath, map[string]string{"text": "edited text"}, nil, session)
		assertRedirect(t, resp, detailPath)

		var stored models.Post
		require.NoError(t, e.db.First(&stored, post.ID).Error)
		assert.Equal(t, "edited text", stored.Text)
		assert.Nil(t, stored.GroupID)
	})

	t.Run("Missing Post", func(t *testing.T) {
		resp := e.get(t, "/posts/9999/edit/", withSession(e.sessionFor(t, author)))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAddComment(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	reader := testutil.CreateUser(t, e.db, "reader")
	post := testutil.CreatePost(t, e.db, author, nil, "discuss")
	path := fmt.Sprintf("/posts/%d/comment", post.ID)
	detail := fmt.Sprintf("/posts/%d/", post.ID)
	session := withSession(e.sessionFor(t, reader))

	assertRedirect(t, e.postForm(t, path, url.Values{"text": {"one"}}, session), detail)
	assertRedirect(t, e.postForm(t, path, url.Values{"text": {"two"}}, session), detail)
	assertRedirect(t, e.postForm(t, path, url.Values{"text": {"   "}}, session), detail)

	comments, err := e.server.commentService.ListComments(context.Background(), post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "one", comments[0].Text)
	assert.Equal(t, "two", comments[1].Text)
	assert.Equal(t, "reader", comments[0].Author.Username)

	resp := e.postForm(t, "/posts/9999/comment", url.Values{"text": {"lost"}}, session)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFollowPages(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	reader := testutil.CreateUser(t, e.db, "reader")
	testutil.CreatePost(t, e.db, author, nil, "followed content")
	session := withSession(e.sessionFor(t, reader))

	body := readBody(t, e.get(t, "/follow/", session))
	assert.NotContains(t, body, "followed content")

	assertRedirect(t, e.get(t, "/profile/leo/follow", session), "/profile/leo/")
	assertRedirect(t, e.get(t, "/profile/leo/follow", session), "/profile/leo/")
	assertRedirect(t, e.get(t, "/profile/reader/follow", session), "/profile/reader/")

	var edges []models.Follow
	require.NoError(t, e.db.Find(&edges).Error)
	require.Len(t, edges, 1)
	assert.Equal(t, reader.ID, edges[0].UserID)
	assert.Equal(t, author.ID, edges[0].AuthorID)

	body = readBody(t, e.get(t, "/follow/", session))
	assert.Contains(t, body, "followed content")

	assertRedirect(t, e.get(t, "/profile/leo/unfollow", session), "/profile/leo/")
	assert.Equal(t, http.StatusNotFound, e.get(t, "/profile/leo/unfollow", session).StatusCode)
	assert.Equal(t, http.StatusNotFound, e.get(t, "/profile/nobody/follow", session).StatusCode)
}

func TestNotFoundPage(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	resp := e.get(t, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Page not found")
	assert.Contains(t, body, "/no/such/page")

	assertAPIError(t, e.get(t, "/api/v1/nothing/"), http.StatusNotFound, models.CodeNotFound)
}

func TestMediaRedirect(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	assertRedirect(t, e.get(t, "/media/posts/abc.gif"), "http://media.test/pivot-media/posts/abc.gif")
	assert.Equal(t, http.StatusNotFound, e.get(t, "/media/other/abc.gif").StatusCode)
}
