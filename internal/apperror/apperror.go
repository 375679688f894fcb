// Package apperror defines the error taxonomy shared by the service and handler layers.
//
// Every expected business failure is an *AppError. It carries two levels of detail:
//   - Err: the broad kind (ErrNotFound, ErrForbidden, ErrConflict, ...), checked with errors.Is
//   - Code: the precise reason (CodePlaylistNotFound, CodeAlreadyCollaborator, ...)
//
// A nil error is the success case. Anything that is NOT an *AppError is an
// unexpected fault (database unavailable, etc.) and handlers turn it into a 500.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrExternal        = errors.New("external failure")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Code is the machine-readable reason for a failure. It is what API clients
// switch on, so values must stay stable.
type Code string

const (
	CodePlaylistNotFound   Code = "playlist_not_found"
	CodeUserNotFound       Code = "user_not_found"
	CodeSongNotFound       Code = "song_not_found"
	CodeTrackNotFound      Code = "track_not_found"
	CodeNotAuthorized      Code = "not_authorized"
	CodeAlreadyCollab      Code = "already_collaborator"
	CodeNotACollaborator   Code = "not_a_collaborator"
	CodeHostIsOwner        Code = "host_is_owner"
	CodeAlreadyInPlaylist  Code = "already_in_playlist"
	CodeSongNotInPlaylist  Code = "song_not_in_playlist"
	CodeNameTaken          Code = "name_taken"
	CodeUsernameTaken      Code = "username_taken"
	CodeExternalFailure    Code = "external_failure"
	CodeValidation         Code = "validation_failed"
	CodeInvalidCredentials Code = "invalid_credentials"

	// CodeNotFound and CodeConflict are the generic codes used by the store
	// when it cannot know which domain reason applies.
	CodeNotFound Code = "not_found"
	CodeConflict Code = "conflict"
)

type AppError struct {
	Err     error  // kind sentinel
	Code    Code   // precise reason
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf returns the Code of the first *AppError in err's chain, or "" if
// err is nil or not an application error.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Code:    CodeValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Code:    CodeConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Code:    CodeNotAuthorized,
		Message: message,
	}
}

// === Domain constructors ===

func PlaylistNotFound(id string) *AppError {
	return &AppError{Err: ErrNotFound, Code: CodePlaylistNotFound,
		Message: fmt.Sprintf("playlist not found with id %s", id)}
}

func UserNotFound(ref string) *AppError {
	return &AppError{Err: ErrNotFound, Code: CodeUserNotFound,
		Message: fmt.Sprintf("user not found: %s", ref)}
}

func SongNotFound(id string) *AppError {
	return &AppError{Err: ErrNotFound, Code: CodeSongNotFound,
		Message: fmt.Sprintf("song not found with id %s", id)}
}

func TrackNotFound(externalID string) *AppError {
	return &AppError{Err: ErrNotFound, Code: CodeTrackNotFound,
		Message: fmt.Sprintf("catalog has no track %s", externalID)}
}

// NotAuthorized is Forbidden with a fixed message for playlist mutations.
func NotAuthorized(action string) *AppError {
	return Forbidden(fmt.Sprintf("not authorized to %s", action))
}

func AlreadyCollaborator(userID string) *AppError {
	return &AppError{Err: ErrConflict, Code: CodeAlreadyCollab,
		Message: fmt.Sprintf("user %s is already a collaborator", userID)}
}

func NotACollaborator(userID string) *AppError {
	return &AppError{Err: ErrConflict, Code: CodeNotACollaborator,
		Message: fmt.Sprintf("user %s is not a collaborator", userID)}
}

func HostIsOwner() *AppError {
	return &AppError{Err: ErrConflict, Code: CodeHostIsOwner,
		Message: "the host already owns this playlist"}
}

func AlreadyInPlaylist(songID string) *AppError {
	return &AppError{Err: ErrConflict, Code: CodeAlreadyInPlaylist,
		Message: fmt.Sprintf("song %s is already in the playlist", songID)}
}

func SongNotInPlaylist(songID string) *AppError {
	return &AppError{Err: ErrConflict, Code: CodeSongNotInPlaylist,
		Message: fmt.Sprintf("song %s is not in the playlist", songID)}
}

func NameTaken(name string) *AppError {
	return &AppError{Err: ErrConflict, Code: CodeNameTaken, Field: "name",
		Message: fmt.Sprintf("a playlist named %q already exists", name)}
}

func UsernameTaken(username string) *AppError {
	return &AppError{Err: ErrConflict, Code: CodeUsernameTaken, Field: "username",
		Message: fmt.Sprintf("username %q is already taken", username)}
}

func InvalidCredentials() *AppError {
	return &AppError{Err: ErrUnauthenticated, Code: CodeInvalidCredentials,
		Message: "invalid username or password"}
}

// External wraps a failure of an outside system (the music catalog). The
// cause is kept in the chain for logging but never shown to API clients.
func External(message string, cause error) *AppError {
	err := ErrExternal
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrExternal, cause)
	}
	return &AppError{
		Err:     err,
		Code:    CodeExternalFailure,
		Message: message,
	}
}
