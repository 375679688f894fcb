package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/playlist-collab/internal/apperror"
	"github.com/sakif/playlist-collab/internal/auth"
	"github.com/sakif/playlist-collab/internal/model"
	"github.com/sakif/playlist-collab/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// AuthService handles registration, login and role changes.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ PasswordService (bcrypt)
//	                               ↘ TokenService (JWT)
//
// It never touches cookies or headers. The handler turns an AuthResult into
// a Set-Cookie.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and a freshly issued token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a Guest account and signs it in.
func (s *AuthService) Register(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		// Hash only fails on over-long input or a broken bcrypt cost.
		return nil, apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleGuest,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, logFault(s.logger, "creating user", err, slog.String("username", username))
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

// Login checks the password and issues a token. Unknown usernames and wrong
// passwords produce the same InvalidCredentials error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperror.HasCode(err, apperror.CodeUserNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, logFault(s.logger, "loading user", err, slog.String("username", username))
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.InvalidCredentials()
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// GetUserByID returns the user behind an authenticated request.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, logFault(s.logger, "loading user", err, slog.String("userID", id))
	}
	return user, nil
}

// SetRole changes targetID's role. Only Admins may do this.
func (s *AuthService) SetRole(ctx context.Context, requesterID, targetID string, role model.Role) (*model.User, error) {
	requester, err := s.users.GetUserByID(ctx, requesterID)
	if err != nil {
		return nil, logFault(s.logger, "loading user", err, slog.String("userID", requesterID))
	}
	if requester.Role != model.RoleAdmin {
		return nil, apperror.NotAuthorized("change user roles")
	}
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role",
			fmt.Sprintf("role must be one of %s, %s, %s", model.RoleGuest, model.RoleHost, model.RoleAdmin))
	}

	if err := s.users.UpdateUserRole(ctx, targetID, role); err != nil {
		return nil, logFault(s.logger, "updating role", err, slog.String("userID", targetID))
	}
	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		return nil, logFault(s.logger, "loading user", err, slog.String("userID", targetID))
	}

	s.logger.Info("user role changed",
		slog.String("userID", targetID),
		slog.String("role", string(role)),
		slog.String("by", requesterID),
	)
	return target, nil
}

// ValidateToken returns the user id encoded in tokenStr.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func validateUsername(username string) error {
	switch {
	case len(username) < MinUsernameLength || len(username) > MaxUsernameLength:
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d to %d characters", MinUsernameLength, MaxUsernameLength))
	case !usernamePattern.MatchString(username):
		return apperror.ValidationFailed("username",
			"username may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}
