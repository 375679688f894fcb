package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/service"
)

// SongHandler admits tracks into the song table without touching any
// playlist. Clients that already hold full track metadata use it instead of
// a catalog lookup.
type SongHandler struct {
	admission *service.AdmissionService
	logger    *slog.Logger
}

func NewSongHandler(admission *service.AdmissionService, logger *slog.Logger) *SongHandler {
	return &SongHandler{admission: admission, logger: logger}
}

type admitSongRequest struct {
	ExternalID  string   `json:"externalId"`
	Title       string   `json:"title"`
	Album       string   `json:"album"`
	DurationSec int      `json:"durationSec"`
	ExternalURI string   `json:"externalUri"`
	Artists     []string `json:"artists"`
}

// HandleAdmit creates or refreshes the song for externalId.
//
// HTTP: POST /api/songs
// REQUEST BODY: {"externalId": "...", "title": "...", "artists": ["..."]}
func (h *SongHandler) HandleAdmit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requesterID(w, r); !ok {
		return
	}

	var req admitSongRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	song, err := h.admission.Admit(r.Context(), model.TrackInput{
		Title:       req.Title,
		Album:       req.Album,
		DurationSec: req.DurationSec,
		ExternalID:  req.ExternalID,
		ExternalURI: req.ExternalURI,
		ArtistNames: req.Artists,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}
