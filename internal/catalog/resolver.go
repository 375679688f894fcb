// Package catalog resolves external track identifiers into track metadata.
//
// The rest of the system only sees the Resolver interface. SpotifyResolver
// talks to the Spotify Web API; StaticResolver answers from a fixed map and is
// used in tests and when no catalog credentials are configured.
package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrTrackNotFound is returned when the catalog has no track with the given id.
var ErrTrackNotFound = errors.New("catalog: track not found")

// Track is the catalog's view of a track.
type Track struct {
	Title       string
	Album       string
	DurationMs  int
	ExternalURI string
	ArtistNames []string
}

// Resolver looks up a track by its external catalog id.
//
// Implementations return ErrTrackNotFound (possibly wrapped) for unknown ids.
// Every other error means the catalog could not be reached or answered with
// something unusable.
type Resolver interface {
	ResolveTrack(ctx context.Context, externalID string) (*Track, error)
}

// StaticResolver serves tracks from memory. The zero value is an empty catalog.
type StaticResolver struct {
	mu     sync.RWMutex
	tracks map[string]Track
}

// NewStaticResolver returns a resolver preloaded with tracks keyed by external id.
func NewStaticResolver(tracks map[string]Track) *StaticResolver {
	r := &StaticResolver{tracks: make(map[string]Track, len(tracks))}
	for id, t := range tracks {
		r.tracks[id] = t
	}
	return r
}

// Add registers or replaces a track.
func (r *StaticResolver) Add(externalID string, t Track) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracks == nil {
		r.tracks = make(map[string]Track)
	}
	r.tracks[externalID] = t
}

// ResolveTrack implements Resolver.
func (r *StaticResolver) ResolveTrack(_ context.Context, externalID string) (*Track, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tracks[strings.TrimSpace(externalID)]
	if !ok {
		return nil, ErrTrackNotFound
	}
	t.ArtistNames = append([]string(nil), t.ArtistNames...)
	return &t, nil
}
