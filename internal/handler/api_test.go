package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/playlist-collab/internal/auth"
	"github.com/sakif/playlist-collab/internal/catalog"
	"github.com/sakif/playlist-collab/internal/model"
)

func TestAuthHandlers(t *testing.T) {
	env := newTestEnv(t)

	t.Run("register sets the session cookie", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/auth/register", "", map[string]string{
			"username": "ana",
			"password": "password123",
		})
		require.Equal(t, http.StatusCreated, rr.Code)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.NotContains(t, rr.Body.String(), "password")
	})

	t.Run("duplicate username", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/auth/register", "", map[string]string{
			"username": "ana",
			"password": "password123",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "username_taken", errorCode(t, rr))
	})

	t.Run("short password", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/auth/register", "", map[string]string{
			"username": "bob",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("login", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/auth/login", "", map[string]string{
			"username": "ana",
			"password": "password123",
		})
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/auth/login", "", map[string]string{
			"username": "ana",
			"password": "nope-nope-nope",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid_credentials", errorCode(t, rr))
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/auth/login", "", "not an object")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("logout expires the cookie", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/auth/logout", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Less(t, cookies[0].MaxAge, 0)
	})
}

func TestMeAndSetRole(t *testing.T) {
	env := newTestEnv(t)
	env.register("root", model.RoleAdmin)
	guestID := env.register("guest", model.RoleGuest)

	rr := env.do(http.MethodGet, "/api/me", "guest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var me model.User
	decode(t, rr, &me)
	assert.Equal(t, "guest", me.Username)
	assert.Equal(t, model.RoleGuest, me.Role)

	rr = env.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodPut, "/api/users/"+guestID+"/role", "guest", map[string]string{"role": "Admin"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(http.MethodPut, "/api/users/"+guestID+"/role", "root", map[string]string{"role": "Superuser"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodPut, "/api/users/"+guestID+"/role", "root", map[string]string{"role": "Host"})
	require.Equal(t, http.StatusOK, rr.Code)
	var updated model.User
	decode(t, rr, &updated)
	assert.Equal(t, model.RoleHost, updated.Role)
}

func TestPlaylistHandlers(t *testing.T) {
	env := newTestEnv(t)
	env.register("host", model.RoleHost)
	env.register("guest", model.RoleGuest)

	rr := env.do(http.MethodPost, "/api/playlists", "guest", map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, rr.Code, "guests cannot host")

	id := env.createPlaylist("host", "Road Trip")

	rr = env.do(http.MethodPost, "/api/playlists", "host", map[string]string{"name": "Road Trip"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "name_taken", errorCode(t, rr))

	rr = env.do(http.MethodGet, "/api/playlists/"+id, "guest", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(http.MethodGet, "/api/playlists/missing", "host", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "playlist_not_found", errorCode(t, rr))

	rr = env.do(http.MethodPatch, "/api/playlists/"+id, "host", map[string]string{"description": "summer"})
	require.Equal(t, http.StatusOK, rr.Code)
	var p model.Playlist
	decode(t, rr, &p)
	assert.Equal(t, "Road Trip", p.Name)
	assert.Equal(t, "summer", p.Description)

	rr = env.do(http.MethodGet, "/api/playlists", "host", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []model.Playlist
	decode(t, rr, &list)
	assert.Len(t, list, 1)

	rr = env.do(http.MethodGet, "/api/playlists", "guest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = env.do(http.MethodGet, "/api/playlists?limit=-1", "host", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(http.MethodDelete, "/api/playlists/"+id, "guest", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(http.MethodDelete, "/api/playlists/"+id, "host", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(http.MethodGet, "/api/playlists/"+id, "host", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCollaborationHandlers(t *testing.T) {
	env := newTestEnv(t)
	env.register("host", model.RoleHost)
	guestID := env.register("guest", model.RoleGuest)
	env.register("stranger", model.RoleGuest)
	id := env.createPlaylist("host", "Road Trip")
	base := "/api/playlists/" + id

	t.Run("guest cannot add songs before being invited", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/songs", "guest", map[string]string{"externalId": "t1"})
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "not_authorized", errorCode(t, rr))
	})

	t.Run("only the host invites", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/collaborators", "stranger", map[string]string{"userId": guestID})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("invite by username", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/collaborators", "host", map[string]string{"username": "guest"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var p model.Playlist
		decode(t, rr, &p)
		require.Len(t, p.Collaborators, 1)
		assert.Equal(t, guestID, p.Collaborators[0].ID)
	})

	t.Run("second invite conflicts", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/collaborators", "host", map[string]string{"userId": guestID})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "already_collaborator", errorCode(t, rr))
	})

	t.Run("empty invite body", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/collaborators", "host", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("collaborators are listed to members", func(t *testing.T) {
		rr := env.do(http.MethodGet, base+"/collaborators", "guest", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var users []model.User
		decode(t, rr, &users)
		assert.Len(t, users, 1)

		rr = env.do(http.MethodGet, base+"/collaborators", "stranger", nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	env.catalog.Add("t1", catalog.Track{Title: "Dreams", DurationMs: 257000, ArtistNames: []string{"Fleetwood Mac"}})

	var songID string
	t.Run("collaborator adds a catalog track", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/songs", "guest", map[string]string{"externalId": "t1"})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var ps model.PlaylistSong
		decode(t, rr, &ps)
		assert.Equal(t, 1, ps.Position)
		require.NotNil(t, ps.Song)
		assert.Equal(t, "Dreams", ps.Song.Title)
		assert.Equal(t, 257, ps.Song.DurationSec)
		songID = ps.SongID
	})

	t.Run("same song twice conflicts", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/songs", "host", map[string]string{"songId": songID})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "already_in_playlist", errorCode(t, rr))
	})

	t.Run("unknown catalog track", func(t *testing.T) {
		rr := env.do(http.MethodPost, base+"/songs", "host", map[string]string{"externalId": "nope"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "track_not_found", errorCode(t, rr))
	})

	t.Run("remove song", func(t *testing.T) {
		rr := env.do(http.MethodDelete, base+"/songs/"+songID, "guest", nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = env.do(http.MethodDelete, base+"/songs/"+songID, "guest", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "song_not_in_playlist", errorCode(t, rr))
	})

	t.Run("remove collaborator revokes access", func(t *testing.T) {
		rr := env.do(http.MethodDelete, base+"/collaborators/"+guestID, "host", nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = env.do(http.MethodPost, base+"/songs", "guest", map[string]string{"songId": songID})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestSongHandler_Admit(t *testing.T) {
	env := newTestEnv(t)
	env.register("ana", model.RoleGuest)

	rr := env.do(http.MethodPost, "/api/songs", "ana", map[string]any{
		"externalId": "x1",
		"title":      "Hold On",
		"artists":    []string{"Drake", " drake ", "DRAKE"},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var song model.Song
	decode(t, rr, &song)
	assert.Equal(t, "x1", song.ExternalID)
	assert.Len(t, song.Artists, 1)

	rr = env.do(http.MethodPost, "/api/songs", "ana", map[string]any{"externalId": "x2"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "title is required")
}

func TestPresenceHandlers(t *testing.T) {
	env := newTestEnv(t)
	env.register("host", model.RoleHost)
	guestID := env.register("guest", model.RoleGuest)
	env.register("stranger", model.RoleGuest)
	id := env.createPlaylist("host", "Road Trip")
	base := "/api/playlists/" + id

	rr := env.do(http.MethodPost, base+"/collaborators", "host", map[string]string{"userId": guestID})
	require.Equal(t, http.StatusOK, rr.Code)

	type presenceBody struct {
		ActiveUsers    []model.ActiveUser `json:"activeUsers"`
		TimeoutSeconds int                `json:"timeoutSeconds"`
	}

	rr = env.do(http.MethodPost, base+"/presence", "host", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, base+"/presence", "guest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body presenceBody
	decode(t, rr, &body)
	assert.Equal(t, 60, body.TimeoutSeconds)
	require.Len(t, body.ActiveUsers, 2)
	assert.Equal(t, "guest", body.ActiveUsers[0].Username, "most recent heartbeat first")

	rr = env.do(http.MethodPost, base+"/presence", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = env.do(http.MethodGet, base+"/presence", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = env.do(http.MethodPost, "/api/playlists/missing/presence", "host", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(http.MethodDelete, base+"/presence", "guest", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(http.MethodGet, base+"/presence", "host", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body = presenceBody{}
	decode(t, rr, &body)
	require.Len(t, body.ActiveUsers, 1)
	assert.Equal(t, "host", body.ActiveUsers[0].Username)
}
