package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/repository"
)

var _ repository.SongRepository = (*DB)(nil)

const songColumns = `id, title, album, duration_sec, external_id, external_uri`

// GetSongByID returns the song with its artists attached.
func (db *DB) GetSongByID(ctx context.Context, id string) (*model.Song, error) {
	return db.getSong(ctx, `WHERE id = ?`, id, func() error { return apperror.SongNotFound(id) })
}

// GetSongByExternalID looks a song up by its catalog identifier.
func (db *DB) GetSongByExternalID(ctx context.Context, externalID string) (*model.Song, error) {
	return db.getSong(ctx, `WHERE external_id = ?`, externalID,
		func() error { return apperror.NotFound("song", externalID) })
}

func (db *DB) getSong(ctx context.Context, where string, arg string, notFound func() error) (*model.Song, error) {
	var s model.Song
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+songColumns+` FROM songs `+where, arg,
	).Scan(&s.ID, &s.Title, &s.Album, &s.DurationSec, &s.ExternalID, &s.ExternalURI)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound()
		}
		return nil, fmt.Errorf("sqlite: getting song %s: %w", arg, err)
	}

	artists, err := db.artistsForSongs(ctx, []string{s.ID})
	if err != nil {
		return nil, err
	}
	s.Artists = artists[s.ID]
	if s.Artists == nil {
		s.Artists = []model.Artist{}
	}
	return &s, nil
}

// SongExists is a cheap existence probe that does not load artists.
func (db *DB) SongExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking song %s: %w", id, err)
	}
	return n > 0, nil
}

// CreateSong inserts the song row only. Artists are attached separately with
// AttachArtist so that existing artist rows can be reused.
func (db *DB) CreateSong(ctx context.Context, song *model.Song) error {
	song.ID = xid.New().String()
	now := time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO songs (id, title, album, duration_sec, external_id, external_uri, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		song.ID,
		song.Title,
		song.Album,
		song.DurationSec,
		song.ExternalID,
		song.ExternalURI,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("song", song.ExternalID)
		}
		return fmt.Errorf("sqlite: inserting song %s: %w", song.ExternalID, err)
	}
	return nil
}

// UpdateSong refreshes the mutable catalog fields of an existing song.
func (db *DB) UpdateSong(ctx context.Context, song *model.Song) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE songs
		 SET title = ?, album = ?, duration_sec = ?, external_uri = ?, updated_at = ?
		 WHERE id = ?`,
		song.Title,
		song.Album,
		song.DurationSec,
		song.ExternalURI,
		time.Now().UTC(),
		song.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating song %s: %w", song.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.SongNotFound(song.ID)
	}
	return nil
}

// FindArtistByName matches on the normalised name key.
func (db *DB) FindArtistByName(ctx context.Context, name string) (*model.Artist, error) {
	key := model.ArtistKey(name)

	var a model.Artist
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name FROM artists WHERE name_key = ?`, key,
	).Scan(&a.ID, &a.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("artist", strings.TrimSpace(name))
		}
		return nil, fmt.Errorf("sqlite: finding artist %q: %w", name, err)
	}
	return &a, nil
}

// CreateArtist inserts a new artist with its trimmed name.
func (db *DB) CreateArtist(ctx context.Context, artist *model.Artist) error {
	artist.ID = xid.New().String()
	artist.Name = strings.TrimSpace(artist.Name)

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO artists (id, name, name_key) VALUES (?, ?, ?)`,
		artist.ID, artist.Name, model.ArtistKey(artist.Name),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("artist", artist.Name)
		}
		return fmt.Errorf("sqlite: inserting artist %q: %w", artist.Name, err)
	}
	return nil
}

// AttachArtist links an artist to a song. Attaching twice is a no-op.
func (db *DB) AttachArtist(ctx context.Context, songID, artistID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO song_artists (song_id, artist_id) VALUES (?, ?)`,
		songID, artistID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: attaching artist %s to song %s: %w", artistID, songID, err)
	}
	return nil
}

// artistsForSongs loads the artists of several songs at once, keyed by song id.
func (db *DB) artistsForSongs(ctx context.Context, songIDs []string) (map[string][]model.Artist, error) {
	out := make(map[string][]model.Artist, len(songIDs))
	if len(songIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(songIDs))
	for i, id := range songIDs {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT sa.song_id, a.id, a.name
		 FROM song_artists sa
		 JOIN artists a ON a.id = sa.artist_id
		 WHERE sa.song_id IN (`+placeholders(len(songIDs))+`)
		 ORDER BY a.name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading song artists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var songID string
		var a model.Artist
		if err := rows.Scan(&songID, &a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning song artist: %w", err)
		}
		out[songID] = append(out[songID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating song artists: %w", err)
	}
	return out, nil
}
