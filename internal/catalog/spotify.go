package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultSpotifyAPIURL   = "https://api.spotify.com"
	DefaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// SpotifyConfig holds the application credentials for the Spotify Web API.
// APIURL and TokenURL default to the public endpoints and are overridden in
// tests to point at an httptest server.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	TokenURL     string
	Timeout      time.Duration
}

// SpotifyResolver resolves Spotify track ids.
//
// It authenticates with the OAuth 2.0 client-credentials grant: the app
// exchanges its own id and secret for a bearer token, no user involved. The
// oauth2 package caches the token and refreshes it shortly before expiry, so
// one SpotifyResolver should be shared for the lifetime of the process.
type SpotifyResolver struct {
	client  *http.Client
	baseURL string
}

// NewSpotifyResolver builds a resolver from cfg. No request is made until the
// first ResolveTrack call.
func NewSpotifyResolver(cfg SpotifyConfig) *SpotifyResolver {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultSpotifyAPIURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultSpotifyTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	client := cc.Client(context.Background())
	client.Timeout = cfg.Timeout

	return &SpotifyResolver{
		client:  client,
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
	}
}

// spotifyTrack is the subset of GET /v1/tracks/{id} we read.
type spotifyTrack struct {
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	URI        string `json:"uri"`
	Album      struct {
		Name string `json:"name"`
	} `json:"album"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

// ResolveTrack implements Resolver.
func (s *SpotifyResolver) ResolveTrack(ctx context.Context, externalID string) (*Track, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return nil, ErrTrackNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/v1/tracks/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: calling spotify: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("catalog: spotify returned status %d for track %s", resp.StatusCode, id)
	}

	var st spotifyTrack
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("catalog: decoding spotify track %s: %w", id, err)
	}
	if strings.TrimSpace(st.Name) == "" {
		return nil, fmt.Errorf("catalog: spotify track %s has no name", id)
	}

	t := &Track{
		Title:       st.Name,
		Album:       st.Album.Name,
		DurationMs:  st.DurationMs,
		ExternalURI: st.URI,
		ArtistNames: make([]string, 0, len(st.Artists)),
	}
	for _, a := range st.Artists {
		t.ArtistNames = append(t.ArtistNames, a.Name)
	}
	return t, nil
}
