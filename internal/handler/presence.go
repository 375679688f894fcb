package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/presence"
)

// AccessChecker decides who may show up as present on a playlist.
// *service.CollaborationService satisfies it.
type AccessChecker interface {
	CanAccess(ctx context.Context, playlistID, userID string) (bool, error)
}

// PresenceHandler exposes the in-memory presence tracker.
//
// Clients POST a heartbeat every few seconds while a playlist is open and
// DELETE when they close it. A client that disappears without leaving drops
// out once the tracker's timeout passes.
//
// The tracker itself checks nothing, so every join and read is gated on
// playlist access here.
type PresenceHandler struct {
	tracker *presence.Tracker
	access  AccessChecker
	logger  *slog.Logger
}

func NewPresenceHandler(tracker *presence.Tracker, access AccessChecker, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, access: access, logger: logger}
}

type presenceResponse struct {
	ActiveUsers    []model.ActiveUser `json:"activeUsers"`
	TimeoutSeconds int                `json:"timeoutSeconds"`
}

// HandleJoin records a heartbeat and returns who else is here.
//
// HTTP: POST /api/playlists/{id}/presence
func (h *PresenceHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}
	playlistID := playlistIDParam(r)
	if !h.authorize(w, r, playlistID, userID, "join this playlist") {
		return
	}

	h.tracker.Join(playlistID, userID)
	h.writeActive(w, r, playlistID)
}

// HandleLeave removes the caller. Leaving a playlist you never joined is
// not an error.
//
// HTTP: DELETE /api/playlists/{id}/presence
func (h *PresenceHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	h.tracker.Leave(playlistIDParam(r), userID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleList returns the active users without recording a heartbeat.
//
// HTTP: GET /api/playlists/{id}/presence
func (h *PresenceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}
	playlistID := playlistIDParam(r)
	if !h.authorize(w, r, playlistID, userID, "view this playlist") {
		return
	}

	h.writeActive(w, r, playlistID)
}

func (h *PresenceHandler) authorize(w http.ResponseWriter, r *http.Request, playlistID, userID, action string) bool {
	allowed, err := h.access.CanAccess(r.Context(), playlistID, userID)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !allowed {
		writeError(w, apperror.NotAuthorized(action))
		return false
	}
	return true
}

func (h *PresenceHandler) writeActive(w http.ResponseWriter, r *http.Request, playlistID string) {
	users, err := h.tracker.GetActiveUsers(r.Context(), playlistID)
	if err != nil {
		h.logger.Error("loading active users",
			slog.String("playlistID", playlistID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	if users == nil {
		users = []model.ActiveUser{}
	}
	writeJSON(w, http.StatusOK, presenceResponse{
		ActiveUsers:    users,
		TimeoutSeconds: int(h.tracker.Timeout().Seconds()),
	})
}
