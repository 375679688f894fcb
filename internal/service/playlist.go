package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/repository"
)

// Validation and pagination limits.
const (
	MaxPlaylistNameLength = 100
	MaxDescriptionLength  = 1000
	DefaultListLimit      = 20
	MaxListLimit          = 100
)

// PlaylistService handles the playlist rows themselves: create, read, rename,
// delete. Membership changes go through CollaborationService.
type PlaylistService struct {
	playlists repository.PlaylistRepository
	users     repository.UserRepository
	logger    *slog.Logger
}

func NewPlaylistService(playlists repository.PlaylistRepository, users repository.UserRepository, logger *slog.Logger) *PlaylistService {
	return &PlaylistService{
		playlists: playlists,
		users:     users,
		logger:    logger,
	}
}

// PlaylistUpdate carries the fields to change. A nil pointer leaves the field
// as it is; concurrent updates are last-write-wins.
type PlaylistUpdate struct {
	Name        *string
	Description *string
	CoverImage  *string
}

// Create makes requesterID the host of a new playlist. Only Host and Admin
// users may create playlists, and names are unique across all playlists.
func (s *PlaylistService) Create(ctx context.Context, requesterID, name, description, coverImage string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	if err := validatePlaylistFields(name, description); err != nil {
		return nil, err
	}

	host, err := s.users.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, logFault(s.logger, "loading host", err, slog.String("userID", requesterID))
	}
	if !host.Role.CanHost() {
		return nil, apperror.NotAuthorized("create playlists")
	}

	p := &model.Playlist{
		Name:        name,
		Description: description,
		CoverImage:  strings.TrimSpace(coverImage),
		HostID:      host.ID,
	}
	if err := s.playlists.CreatePlaylist(ctx, p); err != nil {
		return nil, logFault(s.logger, "creating playlist", err, slog.String("name", name))
	}
	p.Host = host

	s.logger.Info("playlist created",
		slog.String("playlistID", p.ID),
		slog.String("name", p.Name),
		slog.String("hostID", host.ID),
	)
	return p, nil
}

// Get returns the full playlist, songs in playlist order, to its host and
// collaborators.
func (s *PlaylistService) Get(ctx context.Context, playlistID, requesterID string) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylistWithRelations(ctx, playlistID)
	if err != nil {
		return nil, logFault(s.logger, "loading playlist", err, slog.String("playlistID", playlistID))
	}
	if !p.CanAccess(requesterID) {
		return nil, apperror.NotAuthorized("view this playlist")
	}
	model.SortSongs(p.Songs)
	return p, nil
}

// ListForUser returns the playlists userID hosts or collaborates on.
// limit is clamped to 1..MaxListLimit (default DefaultListLimit).
func (s *PlaylistService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]model.Playlist, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	playlists, err := s.playlists.ListPlaylistsForUser(ctx, userID, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, logFault(s.logger, "listing playlists", err, slog.String("userID", userID))
	}
	return playlists, nil
}

// Update changes name, description or cover image. Host only.
func (s *PlaylistService) Update(ctx context.Context, playlistID, requesterID string, upd PlaylistUpdate) (*model.Playlist, error) {
	p, err := s.playlists.GetPlaylistWithRelations(ctx, playlistID)
	if err != nil {
		return nil, logFault(s.logger, "loading playlist", err, slog.String("playlistID", playlistID))
	}
	if !p.IsHost(requesterID) {
		return nil, apperror.NotAuthorized("edit this playlist")
	}

	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.CoverImage != nil {
		p.CoverImage = strings.TrimSpace(*upd.CoverImage)
	}
	if err := validatePlaylistFields(p.Name, p.Description); err != nil {
		return nil, err
	}

	if err := s.playlists.UpdatePlaylist(ctx, p); err != nil {
		return nil, logFault(s.logger, "updating playlist", err, slog.String("playlistID", p.ID))
	}

	s.logger.Info("playlist updated",
		slog.String("playlistID", p.ID),
		slog.String("name", p.Name),
	)
	model.SortSongs(p.Songs)
	return p, nil
}

// Delete removes the playlist with its membership and collaborator rows.
// Host only.
func (s *PlaylistService) Delete(ctx context.Context, playlistID, requesterID string) error {
	p, err := s.playlists.GetPlaylistWithRelations(ctx, playlistID)
	if err != nil {
		return logFault(s.logger, "loading playlist", err, slog.String("playlistID", playlistID))
	}
	if !p.IsHost(requesterID) {
		return apperror.NotAuthorized("delete this playlist")
	}

	if err := s.playlists.DeletePlaylist(ctx, p.ID); err != nil {
		return logFault(s.logger, "deleting playlist", err, slog.String("playlistID", p.ID))
	}

	s.logger.Info("playlist deleted", slog.String("playlistID", p.ID))
	return nil
}

func validatePlaylistFields(name, description string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "playlist name is required")
	}
	if len(name) > MaxPlaylistNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("playlist name must be %d characters or less", MaxPlaylistNameLength))
	}
	if len(description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}
