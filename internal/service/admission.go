package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/catalog"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/repository"
)

const MaxSongTitleLength = 300

// AdmissionService turns catalog data into a canonical Song.
//
// DEDUP RULES:
//   - one Song per external id; admitting the same id again refreshes it
//   - one Artist per name, compared trimmed and case-insensitively
//     ("Drake", " drake " and "DRAKE" are the same artist)
//   - blank artist names are dropped, not rejected
type AdmissionService struct {
	songs   repository.SongRepository
	catalog catalog.Resolver
	logger  *slog.Logger
}

func NewAdmissionService(songs repository.SongRepository, resolver catalog.Resolver, logger *slog.Logger) *AdmissionService {
	return &AdmissionService{
		songs:   songs,
		catalog: resolver,
		logger:  logger,
	}
}

// Admit finds or creates the song for in.ExternalID and makes sure every
// artist in in.ArtistNames is attached. It returns the song with its full
// artist set.
func (s *AdmissionService) Admit(ctx context.Context, in model.TrackInput) (*model.Song, error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Title = strings.TrimSpace(in.Title)
	in.Album = strings.TrimSpace(in.Album)

	if in.ExternalID == "" {
		return nil, apperror.ValidationFailed("externalId", "external track id is required")
	}
	if in.Title == "" {
		return nil, apperror.ValidationFailed("title", "song title is required")
	}
	if len(in.Title) > MaxSongTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("song title must be %d characters or less", MaxSongTitleLength))
	}
	if in.DurationSec < 0 {
		return nil, apperror.ValidationFailed("durationSec", "duration cannot be negative")
	}

	song, err := s.upsertSong(ctx, in)
	if err != nil {
		return nil, err
	}

	for _, name := range model.NormalizeArtistNames(in.ArtistNames) {
		if song.HasArtist(name) {
			continue
		}
		artist, err := s.findOrCreateArtist(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := s.songs.AttachArtist(ctx, song.ID, artist.ID); err != nil {
			return nil, logFault(s.logger, "attaching artist", err,
				slog.String("songID", song.ID), slog.String("artist", name))
		}
		song.Artists = append(song.Artists, *artist)
	}

	return song, nil
}

// AdmitFromCatalog resolves externalID through the catalog and admits the
// result. An unknown id is TrackNotFound; any other catalog problem is an
// ExternalFailure. Nothing is retried.
func (s *AdmissionService) AdmitFromCatalog(ctx context.Context, externalID string) (*model.Song, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperror.ValidationFailed("externalId", "external track id is required")
	}

	track, err := s.catalog.ResolveTrack(ctx, externalID)
	if err != nil {
		if errors.Is(err, catalog.ErrTrackNotFound) {
			return nil, apperror.TrackNotFound(externalID)
		}
		// Warn, not Error: the caller decides whether to retry.
		s.logger.Warn("catalog lookup failed",
			slog.String("externalID", externalID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.External("music catalog is unavailable", err)
	}
	if track == nil || strings.TrimSpace(track.Title) == "" {
		return nil, apperror.External("music catalog returned an incomplete track", nil)
	}

	duration := track.DurationMs / 1000
	if duration < 0 {
		duration = 0
	}

	return s.Admit(ctx, model.TrackInput{
		Title:       track.Title,
		Album:       track.Album,
		DurationSec: duration,
		ExternalID:  externalID,
		ExternalURI: track.ExternalURI,
		ArtistNames: track.ArtistNames,
	})
}

// upsertSong returns the stored song for in.ExternalID with its mutable
// fields refreshed, creating it when it does not exist yet.
func (s *AdmissionService) upsertSong(ctx context.Context, in model.TrackInput) (*model.Song, error) {
	song, err := s.songs.GetSongByExternalID(ctx, in.ExternalID)
	switch {
	case err == nil:
		return s.refresh(ctx, song, in)

	case errors.Is(err, apperror.ErrNotFound):
		song = &model.Song{
			Title:       in.Title,
			Album:       in.Album,
			DurationSec: in.DurationSec,
			ExternalID:  in.ExternalID,
			ExternalURI: in.ExternalURI,
			Artists:     []model.Artist{},
		}
		err := s.songs.CreateSong(ctx, song)
		if err == nil {
			s.logger.Info("song admitted",
				slog.String("songID", song.ID),
				slog.String("externalID", song.ExternalID),
			)
			return song, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, logFault(s.logger, "creating song", err, slog.String("externalID", in.ExternalID))
		}
		// Someone admitted the same track between our lookup and insert.
		existing, err := s.songs.GetSongByExternalID(ctx, in.ExternalID)
		if err != nil {
			return nil, logFault(s.logger, "loading song", err, slog.String("externalID", in.ExternalID))
		}
		return s.refresh(ctx, existing, in)

	default:
		return nil, logFault(s.logger, "loading song", err, slog.String("externalID", in.ExternalID))
	}
}

func (s *AdmissionService) refresh(ctx context.Context, song *model.Song, in model.TrackInput) (*model.Song, error) {
	song.Title = in.Title
	song.Album = in.Album
	song.DurationSec = in.DurationSec
	song.ExternalURI = in.ExternalURI

	if err := s.songs.UpdateSong(ctx, song); err != nil {
		return nil, logFault(s.logger, "updating song", err, slog.String("songID", song.ID))
	}
	if song.Artists == nil {
		song.Artists = []model.Artist{}
	}
	return song, nil
}

// findOrCreateArtist reuses an artist whose name matches case-insensitively,
// otherwise creates one with this spelling.
func (s *AdmissionService) findOrCreateArtist(ctx context.Context, name string) (*model.Artist, error) {
	artist, err := s.songs.FindArtistByName(ctx, name)
	if err == nil {
		return artist, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, logFault(s.logger, "finding artist", err, slog.String("artist", name))
	}

	artist = &model.Artist{Name: name}
	err = s.songs.CreateArtist(ctx, artist)
	if err == nil {
		return artist, nil
	}
	if !errors.Is(err, apperror.ErrConflict) {
		return nil, logFault(s.logger, "creating artist", err, slog.String("artist", name))
	}

	artist, err = s.songs.FindArtistByName(ctx, name)
	if err != nil {
		return nil, logFault(s.logger, "finding artist", err, slog.String("artist", name))
	}
	return artist, nil
}
