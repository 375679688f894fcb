package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/repository"
)

var _ repository.PlaylistRepository = (*DB)(nil)

const playlistColumns = `id, name, description, cover_image, host_id, created_at, updated_at`

// CreatePlaylist inserts a playlist row. Playlist names are unique across the
// whole system; a clash is reported as apperror.NameTaken.
func (db *DB) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	now := time.Now().UTC()
	playlist.ID = xid.New().String()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO playlists (id, name, description, cover_image, host_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		playlist.ID,
		playlist.Name,
		playlist.Description,
		playlist.CoverImage,
		nullIfEmpty(playlist.HostID),
		playlist.CreatedAt,
		playlist.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NameTaken(playlist.Name)
		}
		return fmt.Errorf("sqlite: inserting playlist %q: %w", playlist.Name, err)
	}

	if playlist.Collaborators == nil {
		playlist.Collaborators = []model.User{}
	}
	if playlist.Songs == nil {
		playlist.Songs = []model.PlaylistSong{}
	}
	return nil
}

// GetPlaylistWithRelations loads the playlist aggregate: host, collaborators,
// and membership rows with their songs and artists.
//
// Four short queries instead of one wide JOIN. Each result set is fully read
// and closed before the next query runs (see the package comment).
func (db *DB) GetPlaylistWithRelations(ctx context.Context, id string) (*model.Playlist, error) {
	p, err := scanPlaylist(db.conn.QueryRowContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.PlaylistNotFound(id)
		}
		return nil, fmt.Errorf("sqlite: getting playlist %s: %w", id, err)
	}

	if p.HostID != "" {
		host, err := db.GetUserByID(ctx, p.HostID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: loading host of playlist %s: %w", id, err)
		}
		p.Host = host
	}

	if p.Collaborators, err = db.collaborators(ctx, id); err != nil {
		return nil, err
	}
	if p.Songs, err = db.playlistSongs(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPlaylistsForUser returns the playlists a user hosts or collaborates on,
// newest first. Only playlist columns are loaded; Collaborators and Songs are
// left empty. Use GetPlaylistWithRelations for the full aggregate.
func (db *DB) ListPlaylistsForUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Playlist, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+playlistColumns+`
		 FROM playlists
		 WHERE host_id = ?
		    OR id IN (SELECT playlist_id FROM playlist_collaborators WHERE user_id = ?)
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		userID, userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing playlists for %s: %w", userID, err)
	}
	defer rows.Close()

	playlists := make([]model.Playlist, 0, limit)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning playlist row: %w", err)
		}
		playlists = append(playlists, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating playlists: %w", err)
	}
	return playlists, nil
}

// UpdatePlaylist overwrites name, description and cover image.
func (db *DB) UpdatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	playlist.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE playlists
		 SET name = ?, description = ?, cover_image = ?, updated_at = ?
		 WHERE id = ?`,
		playlist.Name,
		playlist.Description,
		playlist.CoverImage,
		playlist.UpdatedAt,
		playlist.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.NameTaken(playlist.Name)
		}
		return fmt.Errorf("sqlite: updating playlist %s: %w", playlist.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.PlaylistNotFound(playlist.ID)
	}
	return nil
}

// DeletePlaylist removes the playlist. Membership and collaborator rows go
// with it through ON DELETE CASCADE.
func (db *DB) DeletePlaylist(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting playlist %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.PlaylistNotFound(id)
	}
	return nil
}

// AddCollaborator inserts a collaborator row. The (playlist_id, user_id)
// primary key turns a concurrent duplicate into apperror.AlreadyCollaborator.
func (db *DB) AddCollaborator(ctx context.Context, playlistID, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO playlist_collaborators (playlist_id, user_id, added_at) VALUES (?, ?, ?)`,
		playlistID, userID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.AlreadyCollaborator(userID)
		}
		return fmt.Errorf("sqlite: adding collaborator %s to playlist %s: %w", userID, playlistID, err)
	}
	return nil
}

// RemoveCollaborator deletes a collaborator row.
func (db *DB) RemoveCollaborator(ctx context.Context, playlistID, userID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM playlist_collaborators WHERE playlist_id = ? AND user_id = ?`,
		playlistID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing collaborator %s from playlist %s: %w", userID, playlistID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotACollaborator(userID)
	}
	return nil
}

// AddPlaylistSong inserts a membership row at max(position)+1.
//
// The position is computed inside the INSERT itself, so two concurrent adds
// of different songs can never receive the same position.
func (db *DB) AddPlaylistSong(ctx context.Context, ps *model.PlaylistSong) error {
	ps.AddedAt = time.Now().UTC()

	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO playlist_songs (playlist_id, song_id, position, added_by, added_at)
		 SELECT ?, ?, COALESCE(MAX(position), 0) + 1, ?, ?
		 FROM playlist_songs WHERE playlist_id = ?
		 RETURNING position`,
		ps.PlaylistID,
		ps.SongID,
		nullIfEmpty(ps.AddedBy),
		ps.AddedAt,
		ps.PlaylistID,
	).Scan(&ps.Position)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.AlreadyInPlaylist(ps.SongID)
		}
		return fmt.Errorf("sqlite: adding song %s to playlist %s: %w", ps.SongID, ps.PlaylistID, err)
	}
	return nil
}

// RemovePlaylistSong deletes a membership row. Remaining positions are left as is.
func (db *DB) RemovePlaylistSong(ctx context.Context, playlistID, songID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM playlist_songs WHERE playlist_id = ? AND song_id = ?`,
		playlistID, songID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing song %s from playlist %s: %w", songID, playlistID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.SongNotInPlaylist(songID)
	}
	return nil
}

func (db *DB) collaborators(ctx context.Context, playlistID string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.username, u.password_hash, u.role, u.profile_image, u.created_at, u.updated_at
		 FROM playlist_collaborators pc
		 JOIN users u ON u.id = pc.user_id
		 WHERE pc.playlist_id = ?
		 ORDER BY pc.added_at, u.username`,
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading collaborators of %s: %w", playlistID, err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning collaborator: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating collaborators: %w", err)
	}
	return users, nil
}

// playlistSongs loads membership rows with their songs, then attaches artists
// in one batch once the rows are closed.
func (db *DB) playlistSongs(ctx context.Context, playlistID string) ([]model.PlaylistSong, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT ps.song_id, ps.position, ps.added_by, ps.added_at,
		        s.id, s.title, s.album, s.duration_sec, s.external_id, s.external_uri
		 FROM playlist_songs ps
		 JOIN songs s ON s.id = ps.song_id
		 WHERE ps.playlist_id = ?
		 ORDER BY ps.position IS NULL, ps.position, ps.added_at`,
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading songs of %s: %w", playlistID, err)
	}

	songs := []model.PlaylistSong{}
	for rows.Next() {
		var ps model.PlaylistSong
		var position sql.NullInt64
		var addedBy sql.NullString
		s := &model.Song{}
		if err := rows.Scan(
			&ps.SongID, &position, &addedBy, &ps.AddedAt,
			&s.ID, &s.Title, &s.Album, &s.DurationSec, &s.ExternalID, &s.ExternalURI,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning playlist song: %w", err)
		}
		ps.PlaylistID = playlistID
		ps.Position = int(position.Int64)
		ps.AddedBy = addedBy.String
		ps.Song = s
		songs = append(songs, ps)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating playlist songs: %w", err)
	}
	rows.Close()

	ids := make([]string, len(songs))
	for i := range songs {
		ids[i] = songs[i].SongID
	}
	artists, err := db.artistsForSongs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range songs {
		songs[i].Song.Artists = artists[songs[i].SongID]
		if songs[i].Song.Artists == nil {
			songs[i].Song.Artists = []model.Artist{}
		}
	}
	return songs, nil
}

func scanPlaylist(s scanner) (*model.Playlist, error) {
	var p model.Playlist
	var hostID sql.NullString
	if err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.CoverImage,
		&hostID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.HostID = hostID.String
	p.Collaborators = []model.User{}
	p.Songs = []model.PlaylistSong{}
	return &p, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
