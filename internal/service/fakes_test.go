package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/repository"
)

// =========================================================================
// IN-MEMORY STORE
// =========================================================================
//
// fakeStore implements all three repository interfaces the way the SQLite
// store does: unique names, composite keys, max+1 positions, copies out.
// Set fault to make every call fail like a broken database.

type fakeStore struct {
	mu sync.Mutex

	users     map[string]model.User
	playlists map[string]model.Playlist
	collabs   map[string][]string             // playlistID → user ids
	members   map[string][]model.PlaylistSong // playlistID → rows
	songs     map[string]model.Song           // without artists
	artists   map[string]model.Artist
	songArts  map[string][]string // songID → artist ids

	nextID int
	fault  error

	createSongCalls   int
	createArtistCalls int
}

var (
	_ repository.UserRepository     = (*fakeStore)(nil)
	_ repository.PlaylistRepository = (*fakeStore)(nil)
	_ repository.SongRepository     = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]model.User),
		playlists: make(map[string]model.Playlist),
		collabs:   make(map[string][]string),
		members:   make(map[string][]model.PlaylistSong),
		songs:     make(map[string]model.Song),
		artists:   make(map[string]model.Artist),
		songArts:  make(map[string][]string),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// --- users ---

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	for _, u := range f.users {
		if u.Username == user.Username {
			return apperror.UsernameTaken(user.Username)
		}
	}
	user.ID = f.id("user")
	if user.Role == "" {
		user.Role = model.RoleGuest
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = *user
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.UserNotFound(id)
	}
	return &u, nil
}

func (f *fakeStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	username = strings.TrimSpace(username)
	for _, u := range f.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, apperror.UserNotFound(username)
}

func (f *fakeStore) GetUsersByIDs(_ context.Context, ids []string) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	out := []model.User{}
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, id string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	u, ok := f.users[id]
	if !ok {
		return apperror.UserNotFound(id)
	}
	u.Role = role
	f.users[id] = u
	return nil
}

// --- playlists ---

func (f *fakeStore) CreatePlaylist(_ context.Context, p *model.Playlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	for _, existing := range f.playlists {
		if existing.Name == p.Name {
			return apperror.NameTaken(p.Name)
		}
	}
	p.ID = f.id("playlist")
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	p.Collaborators = []model.User{}
	p.Songs = []model.PlaylistSong{}
	f.playlists[p.ID] = model.Playlist{
		ID: p.ID, Name: p.Name, Description: p.Description, CoverImage: p.CoverImage,
		HostID: p.HostID, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	return nil
}

func (f *fakeStore) GetPlaylistWithRelations(_ context.Context, id string) (*model.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	row, ok := f.playlists[id]
	if !ok {
		return nil, apperror.PlaylistNotFound(id)
	}

	p := row
	if host, ok := f.users[p.HostID]; ok {
		p.Host = &host
	}
	p.Collaborators = []model.User{}
	for _, uid := range f.collabs[id] {
		p.Collaborators = append(p.Collaborators, f.users[uid])
	}
	p.Songs = []model.PlaylistSong{}
	for _, ps := range f.members[id] {
		song := f.songWithArtists(ps.SongID)
		ps.Song = &song
		p.Songs = append(p.Songs, ps)
	}
	return &p, nil
}

func (f *fakeStore) ListPlaylistsForUser(_ context.Context, userID string, opts repository.ListOptions) ([]model.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	out := []model.Playlist{}
	for id, p := range f.playlists {
		member := p.HostID == userID
		for _, uid := range f.collabs[id] {
			member = member || uid == userID
		}
		if member {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if opts.Offset >= len(out) {
		return []model.Playlist{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdatePlaylist(_ context.Context, p *model.Playlist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	row, ok := f.playlists[p.ID]
	if !ok {
		return apperror.PlaylistNotFound(p.ID)
	}
	for id, other := range f.playlists {
		if id != p.ID && other.Name == p.Name {
			return apperror.NameTaken(p.Name)
		}
	}
	row.Name, row.Description, row.CoverImage = p.Name, p.Description, p.CoverImage
	row.UpdatedAt = time.Now()
	f.playlists[p.ID] = row
	return nil
}

func (f *fakeStore) DeletePlaylist(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	if _, ok := f.playlists[id]; !ok {
		return apperror.PlaylistNotFound(id)
	}
	delete(f.playlists, id)
	delete(f.collabs, id)
	delete(f.members, id)
	return nil
}

func (f *fakeStore) AddCollaborator(_ context.Context, playlistID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	for _, uid := range f.collabs[playlistID] {
		if uid == userID {
			return apperror.AlreadyCollaborator(userID)
		}
	}
	f.collabs[playlistID] = append(f.collabs[playlistID], userID)
	return nil
}

func (f *fakeStore) RemoveCollaborator(_ context.Context, playlistID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	ids := f.collabs[playlistID]
	for i, uid := range ids {
		if uid == userID {
			f.collabs[playlistID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return apperror.NotACollaborator(userID)
}

func (f *fakeStore) AddPlaylistSong(_ context.Context, ps *model.PlaylistSong) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	max := 0
	for _, row := range f.members[ps.PlaylistID] {
		if row.SongID == ps.SongID {
			return apperror.AlreadyInPlaylist(ps.SongID)
		}
		if row.Position > max {
			max = row.Position
		}
	}
	ps.Position = max + 1
	ps.AddedAt = time.Now()
	stored := *ps
	stored.Song = nil
	f.members[ps.PlaylistID] = append(f.members[ps.PlaylistID], stored)
	return nil
}

func (f *fakeStore) RemovePlaylistSong(_ context.Context, playlistID, songID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	rows := f.members[playlistID]
	for i, row := range rows {
		if row.SongID == songID {
			f.members[playlistID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return apperror.SongNotInPlaylist(songID)
}

// --- songs and artists ---

func (f *fakeStore) songWithArtists(id string) model.Song {
	s := f.songs[id]
	s.Artists = []model.Artist{}
	for _, aid := range f.songArts[id] {
		s.Artists = append(s.Artists, f.artists[aid])
	}
	return s
}

func (f *fakeStore) GetSongByID(_ context.Context, id string) (*model.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	if _, ok := f.songs[id]; !ok {
		return nil, apperror.SongNotFound(id)
	}
	s := f.songWithArtists(id)
	return &s, nil
}

func (f *fakeStore) SongExists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return false, f.fault
	}
	_, ok := f.songs[id]
	return ok, nil
}

func (f *fakeStore) GetSongByExternalID(_ context.Context, externalID string) (*model.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	for id, s := range f.songs {
		if s.ExternalID == externalID {
			out := f.songWithArtists(id)
			return &out, nil
		}
	}
	return nil, apperror.NotFound("song", externalID)
}

func (f *fakeStore) CreateSong(_ context.Context, song *model.Song) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	f.createSongCalls++
	for _, s := range f.songs {
		if s.ExternalID == song.ExternalID {
			return apperror.Conflict("song", song.ExternalID)
		}
	}
	song.ID = f.id("song")
	stored := *song
	stored.Artists = nil
	f.songs[song.ID] = stored
	return nil
}

func (f *fakeStore) UpdateSong(_ context.Context, song *model.Song) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	if _, ok := f.songs[song.ID]; !ok {
		return apperror.SongNotFound(song.ID)
	}
	stored := *song
	stored.Artists = nil
	f.songs[song.ID] = stored
	return nil
}

func (f *fakeStore) FindArtistByName(_ context.Context, name string) (*model.Artist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return nil, f.fault
	}
	key := model.ArtistKey(name)
	for _, a := range f.artists {
		if model.ArtistKey(a.Name) == key {
			return &a, nil
		}
	}
	return nil, apperror.NotFound("artist", strings.TrimSpace(name))
}

func (f *fakeStore) CreateArtist(_ context.Context, artist *model.Artist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	f.createArtistCalls++
	artist.Name = strings.TrimSpace(artist.Name)
	for _, a := range f.artists {
		if model.ArtistKey(a.Name) == model.ArtistKey(artist.Name) {
			return apperror.Conflict("artist", artist.Name)
		}
	}
	artist.ID = f.id("artist")
	f.artists[artist.ID] = *artist
	return nil
}

func (f *fakeStore) AttachArtist(_ context.Context, songID, artistID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fault != nil {
		return f.fault
	}
	for _, aid := range f.songArts[songID] {
		if aid == artistID {
			return nil
		}
	}
	f.songArts[songID] = append(f.songArts[songID], artistID)
	return nil
}

// =========================================================================
// SEEDING HELPERS
// =========================================================================

func (f *fakeStore) seedUser(username string, role model.Role) *model.User {
	u := &model.User{Username: username, Role: role}
	if err := f.CreateUser(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func (f *fakeStore) seedPlaylist(name, hostID string) *model.Playlist {
	p := &model.Playlist{Name: name, HostID: hostID}
	if err := f.CreatePlaylist(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}

func (f *fakeStore) seedSong(externalID string) *model.Song {
	s := &model.Song{Title: "Song " + externalID, ExternalID: externalID}
	if err := f.CreateSong(context.Background(), s); err != nil {
		panic(err)
	}
	return s
}

func (f *fakeStore) setFault(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = err
}

func (f *fakeStore) songCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.songs)
}

func (f *fakeStore) artistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artists)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
