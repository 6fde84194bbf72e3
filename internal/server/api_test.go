package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"pivot/internal/models"
	"pivot/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI_Authentication(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	testutil.CreateUser(t, e.db, "leo")

	t.Run("Anonymous Write", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodPost, "/api/v1/posts/", map[string]any{"text": "hi"})
		assertAPIError(t, resp, http.StatusUnauthorized, models.CodeUnauthorized)
	})

	t.Run("Garbage Bearer", func(t *testing.T) {
		resp := e.get(t, "/api/v1/posts/", withBearer("not-a-jwt"))
		assertAPIError(t, resp, http.StatusUnauthorized, models.CodeUnauthorized)
	})

	t.Run("Unknown API Token", func(t *testing.T) {
		resp := e.get(t, "/api/v1/posts/", withAPIToken(strings.Repeat("a", 40)))
		assertAPIError(t, resp, http.StatusUnauthorized, models.CodeUnauthorized)
	})

	t.Run("Malformed Header", func(t *testing.T) {
		req := e.get(t, "/api/v1/posts/", func(r *http.Request) { r.Header.Set("Authorization", "Bearer a b") })
		assertAPIError(t, req, http.StatusUnauthorized, models.CodeUnauthorized)
	})

	t.Run("Session Cookie Ignored By API", func(t *testing.T) {
		var user models.User
		require.NoError(t, e.db.Where("username = ?", "leo").First(&user).Error)
		resp := e.get(t, "/api/v1/auth/users/me/", withSession(e.sessionFor(t, &user)))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("API Token", func(t *testing.T) {
		creds := map[string]string{"username": "leo", "password": testutil.Password}
		resp := e.sendJSON(t, http.MethodPost, "/api/v1/api-token-auth/", creds)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var first struct {
			Token string `json:"token"`
		}
		decodeJSON(t, resp, &first)
		assert.Len(t, first.Token, 40)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/api-token-auth/", creds)
		var second struct {
			Token string `json:"token"`
		}
		decodeJSON(t, resp, &second)
		assert.Equal(t, first.Token, second.Token)

		resp = e.get(t, "/api/v1/auth/users/me/", withAPIToken(first.Token))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var me models.User
		decodeJSON(t, resp, &me)
		assert.Equal(t, "leo", me.Username)
	})

	t.Run("API Token Bad Credentials", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodPost, "/api/v1/api-token-auth/",
			map[string]string{"username": "leo", "password": "wrong-password"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("JWT Create Refresh Verify", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodPost, "/api/v1/auth/jwt/create/",
			map[string]string{"username": "leo", "password": testutil.Password})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var pair struct {
			Access  string `json:"access"`
			Refresh string `json:"refresh"`
		}
		decodeJSON(t, resp, &pair)
		require.NotEmpty(t, pair.Access)
		require.NotEmpty(t, pair.Refresh)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/auth/jwt/verify/", map[string]string{"token": pair.Access})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/auth/jwt/refresh/", map[string]string{"refresh": pair.Refresh})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var refreshed struct {
			Access string `json:"access"`
		}
		decodeJSON(t, resp, &refreshed)
		assert.NotEmpty(t, refreshed.Access)

		// An access token is not a refresh token.
		resp = e.sendJSON(t, http.MethodPost, "/api/v1/auth/jwt/refresh/", map[string]string{"refresh": pair.Access})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/auth/jwt/verify/", map[string]string{"token": "junk"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp = e.get(t, "/api/v1/auth/users/me/", withBearer(pair.Refresh))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Register", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodPost, "/api/v1/auth/users/",
			map[string]string{"username": "newbie", "password": "a-long-passphrase", "email": "newbie@example.com"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var user models.User
		decodeJSON(t, resp, &user)
		assert.Equal(t, "newbie", user.Username)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/auth/users/",
			map[string]string{"username": "newbie", "password": "a-long-passphrase"})
		assertAPIError(t, resp, http.StatusBadRequest, models.CodeValidation)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/auth/users/",
			map[string]string{"username": "shorty", "password": "123"})
		assertAPIError(t, resp, http.StatusBadRequest, models.CodeValidation)
	})
}

func TestAPI_Posts(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	other := testutil.CreateUser(t, e.db, "mallory")
	cats := testutil.CreateGroup(t, e.db, "cats")
	asAuthor := withBearer(e.bearerFor(t, author))
	asOther := withBearer(e.bearerFor(t, other))

	resp := e.sendJSON(t, http.MethodPost, "/api/v1/posts/", map[string]any{
		"text":  "posted over the api",
		"group": cats.ID,
		"image": "data:image/gif;base64," + base64.StdEncoding.EncodeToString(testutil.SmallGIF),
	}, asAuthor)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created postResponse
	decodeJSON(t, resp, &created)
	assert.Equal(t, "leo", created.Author)
	assert.Equal(t, "posted over the api", created.Text)
	require.NotNil(t, created.Group)
	assert.Equal(t, cats.ID, *created.Group)
	require.NotNil(t, created.Image)
	assert.Contains(t, *created.Image, "/media/posts/")
	assert.Equal(t, 1, e.store.Len())

	path := fmt.Sprintf("/api/v1/posts/%d/", created.ID)

	t.Run("Retrieve", func(t *testing.T) {
		resp := e.get(t, path)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got postResponse
		decodeJSON(t, resp, &got)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("Validation", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodPost, "/api/v1/posts/", map[string]any{"text": ""}, asAuthor)
		assertAPIError(t, resp, http.StatusBadRequest, models.CodeValidation)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/posts/", map[string]any{"text": "x", "group": 999}, asAuthor)
		assertAPIError(t, resp, http.StatusBadRequest, models.CodeValidation)

		resp = e.sendJSON(t, http.MethodPost, "/api/v1/posts/", map[string]any{"text": "x", "image": "%%%"}, asAuthor)
		assertAPIError(t, resp, http.StatusBadRequest, models.CodeValidation)

		resp = e.sendJSON(t, http.MethodPut, path, map[string]any{"group": nil}, asAuthor)
		assertAPIError(t, resp, http.StatusBadRequest, models.CodeValidation)
	})

	t.Run("Non Author Is Forbidden", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodPatch, path, map[string]any{"text": "hijack"}, asOther)
		assertAPIError(t, resp, http.StatusForbidden, models.CodePermissionDenied)

		resp = e.sendJSON(t, http.MethodPut, path, map[string]any{"text": "hijack"}, asOther)
		assertAPIError(t, resp, http.StatusForbidden, models.CodePermissionDenied)

		resp = e.sendJSON(t, http.MethodDelete, path, nil, asOther)
		assertAPIError(t, resp, http.StatusForbidden, models.CodePermissionDenied)
	})

	t.Run("Partial Update", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodPatch, path, map[string]any{"group": nil}, asAuthor)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got postResponse
		decodeJSON(t, resp, &got)
		assert.Nil(t, got.Group)
		assert.Equal(t, "posted over the api", got.Text)

		resp = e.sendJSON(t, http.MethodPut, path, map[string]any{"text": "replaced"}, asAuthor)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		decodeJSON(t, resp, &got)
		assert.Equal(t, "replaced", got.Text)
	})

	t.Run("Bad ID", func(t *testing.T) {
		assertAPIError(t, e.get(t, "/api/v1/posts/abc/"), http.StatusBadRequest, models.CodeValidation)
		assertAPIError(t, e.get(t, "/api/v1/posts/9999/"), http.StatusNotFound, models.CodeNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		resp := e.sendJSON(t, http.MethodDelete, path, nil, asAuthor)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, 0, e.store.Len())
		assertAPIError(t, e.get(t, path), http.StatusNotFound, models.CodeNotFound)
	})
}

func TestAPI_ListPosts(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	testutil.CreatePosts(t, e.db, author, nil, 5)

	resp := e.get(t, "/api/v1/posts/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []postResponse
	decodeJSON(t, resp, &all)
	require.Len(t, all, 5)
	assert.Equal(t, "post 5 by leo", all[0].Text)

	resp = e.get(t, "/api/v1/posts/?limit=2&offset=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Count    int64          `json:"count"`
		Next     *string        `json:"next"`
		Previous *string        `json:"previous"`
		Results  []postResponse `json:"results"`
	}
	decodeJSON(t, resp, &page)
	assert.Equal(t, int64(5), page.Count)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "post 3 by leo", page.Results[0].Text)
	require.NotNil(t, page.Next)
	assert.Contains(t, *page.Next, "offset=4")
	require.NotNil(t, page.Previous)
	assert.NotContains(t, *page.Previous, "offset=")

	resp = e.get(t, "/api/v1/posts/?limit=2&offset=4")
	decodeJSON(t, resp, &page)
	assert.Nil(t, page.Next)
	assert.Len(t, page.Results, 1)
}

func TestAPI_Comments(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	author := testutil.CreateUser(t, e.db, "leo")
	other := testutil.CreateUser(t, e.db, "mallory")
	post := testutil.CreatePost(t, e.db, author, nil, "discuss")
	otherPost := testutil.CreatePost(t, e.db, author, nil, "elsewhere")
	base := fmt.Sprintf("/api/v1/posts/%d/comments/", post.ID)
	asAuthor := withBearer(e.bearerFor(t, author))
	asOther := withBearer(e.bearerFor(t, other))

	resp := e.sendJSON(t, http.MethodPost, base, map[string]string{"text": "guest"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var ids []uint
	for _, text := range []string{"first", "second", "third"} {
		resp := e.sendJSON(t, http.MethodPost, base, map[string]string{"text": text}, asOther)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var c commentResponse
		decodeJSON(t, resp, &c)
		assert.Equal(t, "mallory", c.Author)
		assert.Equal(t, post.ID, c.Post)
		ids = append(ids, c.ID)
	}

	resp = e.get(t, base)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []commentResponse
	decodeJSON(t, resp, &list)
	require.Len(t, list, 3)
	assert.Equal(t, "first", list[0].Text)
	assert.Equal(t, "third", list[2].Text)

	one := fmt.Sprintf("%s%d/", base, ids[0])

	resp = e.sendJSON(t, http.MethodPatch, one, map[string]string{"text": "not yours"}, asAuthor)
	assertAPIError(t, resp, http.StatusForbidden, models.CodePermissionDenied)

	resp = e.sendJSON(t, http.MethodPatch, one, map[string]string{"text": "first, edited"}, asOther)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var edited commentResponse
	decodeJSON(t, resp, &edited)
	assert.Equal(t, "first, edited", edited.Text)

	wrongPost := fmt.Sprintf("/api/v1/posts/%d/comments/%d/", otherPost.ID, ids[0])
	assertAPIError(t, e.get(t, wrongPost), http.StatusNotFound, models.CodeNotFound)
	assertAPIError(t, e.get(t, "/api/v1/posts/9999/comments/"), http.StatusNotFound, models.CodeNotFound)
	assertAPIError(t, e.get(t, fmt.Sprintf("%sabc/", base)), http.StatusBadRequest, models.CodeValidation)

	resp = e.sendJSON(t, http.MethodDelete, one, nil, asAuthor)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = e.sendJSON(t, http.MethodDelete, one, nil, asOther)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assertAPIError(t, e.get(t, one), http.StatusNotFound, models.CodeNotFound)
}

func TestAPI_Groups(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	cats := testutil.CreateGroup(t, e.db, "cats")
	testutil.CreateGroup(t, e.db, "dogs")

	resp := e.get(t, "/api/v1/groups/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var groups []models.Group
	decodeJSON(t, resp, &groups)
	assert.Len(t, groups, 2)

	resp = e.get(t, fmt.Sprintf("/api/v1/groups/%d/", cats.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Group
	decodeJSON(t, resp, &got)
	assert.Equal(t, "cats", got.Slug)

	assertAPIError(t, e.get(t, "/api/v1/groups/9999/"), http.StatusNotFound, models.CodeNotFound)
}

func TestAPI_Follow(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	reader := testutil.CreateUser(t, e.db, "reader")
	testutil.CreateUser(t, e.db, "leo")
	testutil.CreateUser(t, e.db, "leonora")
	testutil.CreateUser(t, e.db, "max")
	asReader := withBearer(e.bearerFor(t, reader))

	assert.Equal(t, http.StatusUnauthorized, e.get(t, "/api/v1/follow/").StatusCode)

	for _, name := range []string{"leo", "leonora", "max"} {
		resp := e.sendJSON(t, http.MethodPost, "/api/v1/follow/", map[string]string{"following": name}, asReader)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var f followResponse
		decodeJSON(t, resp, &f)
		assert.Equal(t, followResponse{User: "reader", Following: name}, f)
	}

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "Duplicate", body: map[string]string{"following": "leo"}},
		{name: "Self", body: map[string]string{"following": "reader"}},
		{name: "Unknown", body: map[string]string{"following": "ghost"}},
		{name: "Missing", body: map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.sendJSON(t, http.MethodPost, "/api/v1/follow/", tt.body, asReader)
			assertAPIError(t, resp, http.StatusBadRequest, models.CodeValidation)
		})
	}

	var selfEdges int64
	require.NoError(t, e.db.Model(&models.Follow{}).Where("user_id = author_id").Count(&selfEdges).Error)
	assert.Zero(t, selfEdges)

	resp := e.get(t, "/api/v1/follow/?search=LEO", asReader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found []followResponse
	decodeJSON(t, resp, &found)
	assert.Len(t, found, 2)

	resp = e.sendJSON(t, http.MethodDelete, "/api/v1/follow/max/", nil, asReader)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.sendJSON(t, http.MethodDelete, "/api/v1/follow/max/", nil, asReader)
	assertAPIError(t, resp, http.StatusNotFound, models.CodeNotFound)
}

func TestAPI_FlushRequiresStaff(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	user := testutil.CreateUser(t, e.db, "leo")
	staff := testutil.CreateStaff(t, e.db, "editor")

	resp := e.sendJSON(t, http.MethodPost, "/api/v1/admin/cache/flush", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = e.sendJSON(t, http.MethodPost, "/api/v1/admin/cache/flush", nil, withBearer(e.bearerFor(t, user)))
	assertAPIError(t, resp, http.StatusForbidden, models.CodePermissionDenied)

	resp = e.sendJSON(t, http.MethodPost, "/api/v1/admin/cache/flush", nil, withBearer(e.bearerFor(t, staff)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
