package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/service"
)

// CollaborationHandler exposes playlist membership: who may edit it and
// which songs are in it. The authority rules live in the service; this type
// only translates HTTP.
type CollaborationHandler struct {
	collab *service.CollaborationService
	logger *slog.Logger
}

func NewCollaborationHandler(collab *service.CollaborationService, logger *slog.Logger) *CollaborationHandler {
	return &CollaborationHandler{collab: collab, logger: logger}
}

// addCollaboratorRequest identifies the invitee by id or by username.
type addCollaboratorRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// addSongRequest names either a stored song or a catalog track.
type addSongRequest struct {
	SongID     string `json:"songId"`
	ExternalID string `json:"externalId"`
}

// HandleListCollaborators returns the collaborator set.
//
// HTTP: GET /api/playlists/{id}/collaborators
func (h *CollaborationHandler) HandleListCollaborators(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	users, err := h.collab.ListCollaborators(r.Context(), playlistIDParam(r), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleAddCollaborator invites a user. Host only.
//
// HTTP: POST /api/playlists/{id}/collaborators
// REQUEST BODY: {"userId": "..."} or {"username": "..."}
func (h *CollaborationHandler) HandleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	var req addCollaboratorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		p   *model.Playlist
		err error
	)
	switch {
	case strings.TrimSpace(req.UserID) != "":
		p, err = h.collab.AddCollaborator(r.Context(), playlistIDParam(r), strings.TrimSpace(req.UserID), userID)
	case strings.TrimSpace(req.Username) != "":
		p, err = h.collab.AddCollaboratorByUsername(r.Context(), playlistIDParam(r), req.Username, userID)
	default:
		err = apperror.ValidationFailed("userId", "userId or username is required")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleRemoveCollaborator revokes a user's access. Host only.
//
// HTTP: DELETE /api/playlists/{id}/collaborators/{userId}
func (h *CollaborationHandler) HandleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	err := h.collab.RemoveCollaborator(r.Context(), playlistIDParam(r), chi.URLParam(r, "userId"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddSong appends a song. Host or collaborator.
//
// HTTP: POST /api/playlists/{id}/songs
// REQUEST BODY: {"songId": "..."} or {"externalId": "<catalog track id>"}
//
// With externalId the track is looked up in the music catalog and admitted
// into the song table first.
func (h *CollaborationHandler) HandleAddSong(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	var req addSongRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var (
		ps  *model.PlaylistSong
		err error
	)
	switch {
	case strings.TrimSpace(req.SongID) != "":
		ps, err = h.collab.AddSong(r.Context(), playlistIDParam(r), strings.TrimSpace(req.SongID), userID)
	case strings.TrimSpace(req.ExternalID) != "":
		ps, err = h.collab.AddTrack(r.Context(), playlistIDParam(r), req.ExternalID, userID)
	default:
		err = apperror.ValidationFailed("songId", "songId or externalId is required")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ps)
}

// HandleRemoveSong drops a song. Host or collaborator.
//
// HTTP: DELETE /api/playlists/{id}/songs/{songId}
func (h *CollaborationHandler) HandleRemoveSong(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	err := h.collab.RemoveSong(r.Context(), playlistIDParam(r), chi.URLParam(r, "songId"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
