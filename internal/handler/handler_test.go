package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/playlist-collab/internal/auth"
	"github.com/sakif/playlist-collab/internal/catalog"
	"github.com/sakif/playlist-collab/internal/handler"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/presence"
	sqliteRepo "github.com/sakif/playlist-collab/internal/repository/sqlite"
	"github.com/sakif/playlist-collab/internal/service"
)

// testEnv is a full HTTP stack over an in-memory database.
type testEnv struct {
	t       *testing.T
	router  chi.Router
	db      *sqliteRepo.DB
	catalog *catalog.StaticResolver
	tokens  map[string]string // username → bearer token
	ids     map[string]string // username → user id
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)

	resolver := catalog.NewStaticResolver(nil)
	authSvc := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), logger)
	admission := service.NewAdmissionService(db, resolver, logger)
	collab := service.NewCollaborationService(db, db, db, admission, logger)
	playlists := service.NewPlaylistService(db, db, logger)
	tracker := presence.NewTracker(db)

	authH := handler.NewAuthHandler(authSvc, tokens.TTL(), logger)
	playlistH := handler.NewPlaylistHandler(playlists, logger)
	collabH := handler.NewCollaborationHandler(collab, logger)
	songH := handler.NewSongHandler(admission, logger)
	presenceH := handler.NewPresenceHandler(tracker, collab, logger)

	r := chi.NewRouter()
	r.Post("/auth/register", authH.HandleRegister)
	r.Post("/auth/login", authH.HandleLogin)
	r.Post("/auth/logout", authH.HandleLogout)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", authH.HandleMe)
		r.Put("/users/{id}/role", authH.HandleSetRole)
		r.Post("/songs", songH.HandleAdmit)
		r.Post("/playlists", playlistH.HandleCreate)
		r.Get("/playlists", playlistH.HandleList)
		r.Get("/playlists/{id}", playlistH.HandleGet)
		r.Patch("/playlists/{id}", playlistH.HandleUpdate)
		r.Delete("/playlists/{id}", playlistH.HandleDelete)
		r.Get("/playlists/{id}/collaborators", collabH.HandleListCollaborators)
		r.Post("/playlists/{id}/collaborators", collabH.HandleAddCollaborator)
		r.Delete("/playlists/{id}/collaborators/{userId}", collabH.HandleRemoveCollaborator)
		r.Post("/playlists/{id}/songs", collabH.HandleAddSong)
		r.Delete("/playlists/{id}/songs/{songId}", collabH.HandleRemoveSong)
		r.Post("/playlists/{id}/presence", presenceH.HandleJoin)
		r.Delete("/playlists/{id}/presence", presenceH.HandleLeave)
		r.Get("/playlists/{id}/presence", presenceH.HandleList)
	})

	return &testEnv{
		t:       t,
		router:  r,
		db:      db,
		catalog: resolver,
		tokens:  map[string]string{},
		ids:     map[string]string{},
	}
}

// do sends a request as username ("" for anonymous) and returns the recorder.
func (e *testEnv) do(method, path, username string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[username])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// register signs a user up over HTTP and promotes them to role.
func (e *testEnv) register(username string, role model.Role) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())

	var res struct {
		User  model.User `json:"user"`
		Token string     `json:"token"`
	}
	decode(e.t, rr, &res)
	if role != model.RoleGuest {
		require.NoError(e.t, e.db.UpdateUserRole(context.Background(), res.User.ID, role))
	}
	e.tokens[username] = res.Token
	e.ids[username] = res.User.ID
	return res.User.ID
}

func (e *testEnv) createPlaylist(host, name string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/playlists", host, map[string]string{"name": name})
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	var p model.Playlist
	decode(e.t, rr, &p)
	return p.ID
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(dst))
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body handler.ErrorResponse
	decode(t, rr, &body)
	return body.Error
}
