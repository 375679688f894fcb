// Package repository declares the storage contracts the service layer depends on.
//
// The sqlite package implements all of them on one *sqlite.DB; service tests
// use in-memory fakes. Lookups of a single missing entity return an
// *apperror.AppError wrapping apperror.ErrNotFound. Unique-key violations
// return one wrapping apperror.ErrConflict.
package repository

import (
	"context"

	"github.com/sakif/playlist-collab/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// GetUsersByIDs returns the users that exist among ids, in no particular
	// order. Unknown ids are skipped rather than reported.
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
	UpdateUserRole(ctx context.Context, id string, role model.Role) error
}

// PlaylistRepository is the Playlist Store. GetPlaylistWithRelations loads the
// whole aggregate eagerly; the service never relies on lazy loading.
type PlaylistRepository interface {
	CreatePlaylist(ctx context.Context, playlist *model.Playlist) error
	GetPlaylistWithRelations(ctx context.Context, id string) (*model.Playlist, error)
	ListPlaylistsForUser(ctx context.Context, userID string, opts ListOptions) ([]model.Playlist, error)
	UpdatePlaylist(ctx context.Context, playlist *model.Playlist) error
	DeletePlaylist(ctx context.Context, id string) error

	AddCollaborator(ctx context.Context, playlistID, userID string) error
	RemoveCollaborator(ctx context.Context, playlistID, userID string) error

	// AddPlaylistSong inserts the membership row and fills in its Position
	// (max existing position + 1) and AddedAt.
	AddPlaylistSong(ctx context.Context, ps *model.PlaylistSong) error
	RemovePlaylistSong(ctx context.Context, playlistID, songID string) error
}

type SongRepository interface {
	GetSongByID(ctx context.Context, id string) (*model.Song, error)
	SongExists(ctx context.Context, id string) (bool, error)
	GetSongByExternalID(ctx context.Context, externalID string) (*model.Song, error)
	CreateSong(ctx context.Context, song *model.Song) error
	UpdateSong(ctx context.Context, song *model.Song) error

	// FindArtistByName matches case-insensitively on the trimmed name.
	FindArtistByName(ctx context.Context, name string) (*model.Artist, error)
	CreateArtist(ctx context.Context, artist *model.Artist) error
	AttachArtist(ctx context.Context, songID, artistID string) error
}
