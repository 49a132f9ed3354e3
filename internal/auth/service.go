package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/driftchat/driftchat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Identity is a verified {userId, username, avatar} triple handed to the
// core once per connection, before any other event is accepted.
type Identity struct {
	UserID   string
	Username string
	Avatar   string
}

// Service verifies identities for the websocket layer and backs the REST
// register/login/guest endpoints. The store may be nil, in which case only
// token verification and guest minting are available.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}
	if s.store == nil {
		return "", errors.New("registration requires a store")
	}

	existing, err := s.store.GetUserByUsername(ctx, username)
	if err == nil && existing != nil {
		return "", ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, DefaultAvatarURL(user.Username), false)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if s.store == nil {
		return "", ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, DefaultAvatarURL(user.Username), false)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Guest creates a temporary guest user and returns a JWT token.
func (s *Service) Guest(ctx context.Context) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", fmt.Errorf("generate guest name: %w", err)
	}
	username := "guest-" + suffix

	var userID string
	if s.store != nil {
		user, err := s.store.CreateGuestUser(ctx, username)
		if err != nil {
			return "", fmt.Errorf("create guest user: %w", err)
		}
		userID = user.ID
	} else {
		userID = uuid.NewString()
	}

	token, err := GenerateToken(s.jwtConfig, userID, username, DefaultAvatarURL(username), true)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// Identify resolves the login payload into a verified identity. A valid
// token wins; otherwise a guest identity is minted from the supplied
// username. This is the single authentication path: the token is an
// optional input, not a parallel handler.
func (s *Service) Identify(token, username, avatar string) (Identity, error) {
	if token != "" {
		claims, err := ValidateToken(s.jwtConfig, token)
		if err != nil {
			return Identity{}, fmt.Errorf("verify token: %w", err)
		}
		id := Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
			Avatar:   claims.Avatar,
		}
		if id.Avatar == "" {
			id.Avatar = DefaultAvatarURL(id.Username)
		}
		return id, nil
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return Identity{}, ErrInvalidUsername
	}
	if avatar == "" {
		avatar = DefaultAvatarURL(username)
	}
	return Identity{
		UserID:   uuid.NewString(),
		Username: username,
		Avatar:   avatar,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// DefaultAvatarURL derives a deterministic avatar for users that did not
// supply one.
func DefaultAvatarURL(username string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(username) + "&background=random"
}

func randomSuffix() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
