// Package service contains the business rules of the playlist application.
//
//	Handler (HTTP)  →  Service (rules)  →  Repository (storage)
//
// Services take repository interfaces, never *sqlite.DB, so tests run them
// against in-memory fakes. They return (value, error): a nil error is success,
// an *apperror.AppError is an expected business failure, and anything else is
// an unexpected fault that the handler turns into a 500.
//
// Expected failures are never logged at error level. Only faults are.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/repository"
)

// CollaborationService guards every change to a playlist's membership.
//
// THE AUTHORITY RULES:
//
//	collaborator set  →  host only
//	songs             →  host or any collaborator
//
// Hosts curate who is in; anyone who is in may curate the music.
//
// Every operation loads the playlist with its relations first and decides
// against that fresh state. Nothing is cached between calls.
//
// CONCURRENCY:
// Load, check and write are separate statements, not one transaction. Two
// identical requests can both pass the checks; the store's primary keys make
// the second insert fail, and that failure comes back as the same
// AlreadyCollaborator / AlreadyInPlaylist error the check would have produced.
type CollaborationService struct {
	playlists repository.PlaylistRepository
	users     repository.UserRepository
	songs     repository.SongRepository
	admission *AdmissionService
	logger    *slog.Logger
}

// NewCollaborationService wires the service. admission may be nil, in which
// case AddTrack is unavailable.
func NewCollaborationService(
	playlists repository.PlaylistRepository,
	users repository.UserRepository,
	songs repository.SongRepository,
	admission *AdmissionService,
	logger *slog.Logger,
) *CollaborationService {
	return &CollaborationService{
		playlists: playlists,
		users:     users,
		songs:     songs,
		admission: admission,
		logger:    logger,
	}
}

// =========================================================================
// COLLABORATORS (host only)
// =========================================================================

// AddCollaborator adds targetUserID to the playlist's collaborators.
//
// Checks, in order: playlist exists, requester is the host, target exists,
// target is not the host, target is not already a collaborator.
func (s *CollaborationService) AddCollaborator(ctx context.Context, playlistID, targetUserID, requesterID string) (*model.Playlist, error) {
	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !p.IsHost(requesterID) {
		return nil, apperror.NotAuthorized("manage collaborators")
	}

	target, err := s.users.GetUserByID(ctx, targetUserID)
	if err != nil {
		return nil, s.fault("loading collaborator", err, slog.String("userID", targetUserID))
	}
	return s.addCollaborator(ctx, p, target)
}

// AddCollaboratorByUsername is AddCollaborator with the target given by
// username.
func (s *CollaborationService) AddCollaboratorByUsername(ctx context.Context, playlistID, username, requesterID string) (*model.Playlist, error) {
	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !p.IsHost(requesterID) {
		return nil, apperror.NotAuthorized("manage collaborators")
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	target, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, s.fault("loading collaborator", err, slog.String("username", username))
	}
	return s.addCollaborator(ctx, p, target)
}

func (s *CollaborationService) addCollaborator(ctx context.Context, p *model.Playlist, target *model.User) (*model.Playlist, error) {
	if p.IsHost(target.ID) {
		return nil, apperror.HostIsOwner()
	}
	if p.IsCollaborator(target.ID) {
		return nil, apperror.AlreadyCollaborator(target.ID)
	}

	if err := s.playlists.AddCollaborator(ctx, p.ID, target.ID); err != nil {
		return nil, s.fault("adding collaborator", err,
			slog.String("playlistID", p.ID), slog.String("userID", target.ID))
	}
	p.Collaborators = append(p.Collaborators, *target)

	s.logger.Info("collaborator added",
		slog.String("playlistID", p.ID),
		slog.String("userID", target.ID),
	)
	return p, nil
}

// RemoveCollaborator removes targetUserID from the collaborators. Only the
// host may do this.
func (s *CollaborationService) RemoveCollaborator(ctx context.Context, playlistID, targetUserID, requesterID string) error {
	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}
	if !p.IsHost(requesterID) {
		return apperror.NotAuthorized("manage collaborators")
	}
	if !p.IsCollaborator(targetUserID) {
		return apperror.NotACollaborator(targetUserID)
	}

	if err := s.playlists.RemoveCollaborator(ctx, p.ID, targetUserID); err != nil {
		return s.fault("removing collaborator", err,
			slog.String("playlistID", p.ID), slog.String("userID", targetUserID))
	}

	s.logger.Info("collaborator removed",
		slog.String("playlistID", p.ID),
		slog.String("userID", targetUserID),
	)
	return nil
}

// ListCollaborators returns the collaborator set to anyone who can access
// the playlist.
func (s *CollaborationService) ListCollaborators(ctx context.Context, playlistID, requesterID string) ([]model.User, error) {
	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(requesterID) {
		return nil, apperror.NotAuthorized("view this playlist")
	}
	return p.Collaborators, nil
}

// CanAccess reports whether userID is the host or a collaborator. A missing
// playlist is false, not an error; only store faults return an error.
func (s *CollaborationService) CanAccess(ctx context.Context, playlistID, userID string) (bool, error) {
	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.CanAccess(userID), nil
}

// =========================================================================
// SONGS (host or collaborator)
// =========================================================================

// AddSong appends an existing song to the playlist. The new row's position
// is one past the highest position in use.
func (s *CollaborationService) AddSong(ctx context.Context, playlistID, songID, requesterID string) (*model.PlaylistSong, error) {
	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(requesterID) {
		return nil, apperror.NotAuthorized("add songs to this playlist")
	}

	exists, err := s.songs.SongExists(ctx, songID)
	if err != nil {
		return nil, s.fault("checking song", err, slog.String("songID", songID))
	}
	if !exists {
		return nil, apperror.SongNotFound(songID)
	}
	if p.HasSong(songID) {
		return nil, apperror.AlreadyInPlaylist(songID)
	}

	ps := &model.PlaylistSong{
		PlaylistID: p.ID,
		SongID:     songID,
		AddedBy:    requesterID,
	}
	if err := s.playlists.AddPlaylistSong(ctx, ps); err != nil {
		return nil, s.fault("adding song", err,
			slog.String("playlistID", p.ID), slog.String("songID", songID))
	}

	s.logger.Info("song added",
		slog.String("playlistID", p.ID),
		slog.String("songID", songID),
		slog.Int("position", ps.Position),
		slog.String("addedBy", requesterID),
	)
	return ps, nil
}

// AddTrack admits a catalog track (creating the song if needed) and adds it
// to the playlist. Authority is checked before the catalog is contacted.
func (s *CollaborationService) AddTrack(ctx context.Context, playlistID, externalID, requesterID string) (*model.PlaylistSong, error) {
	if s.admission == nil {
		return nil, apperror.External("catalog is not configured", nil)
	}

	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(requesterID) {
		return nil, apperror.NotAuthorized("add songs to this playlist")
	}

	song, err := s.admission.AdmitFromCatalog(ctx, externalID)
	if err != nil {
		return nil, err
	}

	ps, err := s.AddSong(ctx, p.ID, song.ID, requesterID)
	if err != nil {
		return nil, err
	}
	ps.Song = song
	return ps, nil
}

// RemoveSong deletes the membership row. Positions of the remaining rows are
// left as they are.
func (s *CollaborationService) RemoveSong(ctx context.Context, playlistID, songID, requesterID string) error {
	p, err := s.loadPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}
	if !p.CanAccess(requesterID) {
		return apperror.NotAuthorized("remove songs from this playlist")
	}
	if !p.HasSong(songID) {
		return apperror.SongNotInPlaylist(songID)
	}

	if err := s.playlists.RemovePlaylistSong(ctx, p.ID, songID); err != nil {
		return s.fault("removing song", err,
			slog.String("playlistID", p.ID), slog.String("songID", songID))
	}

	s.logger.Info("song removed",
		slog.String("playlistID", p.ID),
		slog.String("songID", songID),
		slog.String("removedBy", requesterID),
	)
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

func (s *CollaborationService) loadPlaylist(ctx context.Context, playlistID string) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylistWithRelations(ctx, playlistID)
	if err != nil {
		return nil, s.fault("loading playlist", err, slog.String("playlistID", playlistID))
	}
	return p, nil
}

func (s *CollaborationService) fault(op string, err error, attrs ...slog.Attr) error {
	return logFault(s.logger, op, err, attrs...)
}

// logFault passes business failures through unchanged. Any other error is a
// fault: it is logged at error level and wrapped with op.
func logFault(logger *slog.Logger, op string, err error, attrs ...slog.Attr) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	attrs = append(attrs, slog.String("error", err.Error()))
	logger.LogAttrs(context.Background(), slog.LevelError, op+" failed", attrs...)
	return fmt.Errorf("%s: %w", op, err)
}
