package model

import "strings"

// Song is the canonical row for a catalog track.
//
// ExternalID is the catalog's identifier (e.g. a Spotify track id) and is the
// natural key: the same external id is never stored twice.
type Song struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Album       string   `json:"album,omitempty"`
	DurationSec int      `json:"durationSec,omitempty"`
	ExternalID  string   `json:"externalId"`
	ExternalURI string   `json:"externalUri,omitempty"`
	Artists     []Artist `json:"artists"`
}

// Artist is shared between songs. Two names that differ only by case or
// surrounding whitespace name the same artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ArtistKey returns the dedup key for an artist name.
func ArtistKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// HasArtist reports whether an artist with the same key is already attached.
func (s *Song) HasArtist(name string) bool {
	key := ArtistKey(name)
	for _, a := range s.Artists {
		if ArtistKey(a.Name) == key {
			return true
		}
	}
	return false
}

// TrackInput is the catalog data needed to admit a song.
type TrackInput struct {
	Title       string
	Album       string
	DurationSec int
	ExternalID  string
	ExternalURI string
	ArtistNames []string
}

// NormalizeArtistNames trims names, drops blank entries and collapses names
// that only differ by case. The first spelling seen wins.
func NormalizeArtistNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := ArtistKey(n)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}
