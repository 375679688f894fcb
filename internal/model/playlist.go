package model

import (
	"sort"
	"time"
)

// Playlist is a shared playlist together with its relation graph.
//
// The store always loads it eagerly (host, collaborators, membership rows with
// their songs and artists), so code holding a *Playlist never needs to go back
// to the database to answer "who may edit this?" or "is this song already here?".
//
// HostID is empty when the hosting user has been deleted. The host is never
// listed in Collaborators.
type Playlist struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	CoverImage    string         `json:"coverImage,omitempty"`
	HostID        string         `json:"hostId,omitempty"`
	Host          *User          `json:"host,omitempty"`
	Collaborators []User         `json:"collaborators"`
	Songs         []PlaylistSong `json:"songs"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// PlaylistSong is a membership row keyed by (PlaylistID, SongID).
//
// Position is 1-based and assigned at insertion as max(position)+1. Removing a
// row leaves a gap; positions are never re-compacted. A zero Position means the
// row has no position and sorts last.
type PlaylistSong struct {
	PlaylistID string    `json:"playlistId"`
	SongID     string    `json:"songId"`
	Position   int       `json:"position"`
	AddedBy    string    `json:"addedBy,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
	Song       *Song     `json:"song,omitempty"`
}

// IsHost reports whether userID hosts the playlist.
func (p *Playlist) IsHost(userID string) bool {
	return p.HostID != "" && p.HostID == userID
}

// IsCollaborator reports whether userID is in the collaborator set.
func (p *Playlist) IsCollaborator(userID string) bool {
	for _, c := range p.Collaborators {
		if c.ID == userID {
			return true
		}
	}
	return false
}

// CanAccess is true for the host and for every collaborator.
func (p *Playlist) CanAccess(userID string) bool {
	return userID != "" && (p.IsHost(userID) || p.IsCollaborator(userID))
}

// HasSong reports whether a membership row exists for songID.
func (p *Playlist) HasSong(songID string) bool {
	for _, s := range p.Songs {
		if s.SongID == songID {
			return true
		}
	}
	return false
}

// NextPosition returns the position a newly added song receives.
func (p *Playlist) NextPosition() int {
	max := 0
	for _, s := range p.Songs {
		if s.Position > max {
			max = s.Position
		}
	}
	return max + 1
}

// SortSongs orders membership rows by position. Rows without a position go
// last; ties are broken by the time they were added.
func SortSongs(songs []PlaylistSong) {
	sort.SliceStable(songs, func(i, j int) bool {
		pi, pj := songs[i].Position, songs[j].Position
		switch {
		case pi == pj:
			return songs[i].AddedAt.Before(songs[j].AddedAt)
		case pi <= 0:
			return false
		case pj <= 0:
			return true
		}
		return pi < pj
	})
}
