package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"rutas_admin/internal/domain"
)

type LoginResult struct {
	Session  domain.Session
	DeviceID string
	User     domain.UserView
}

// AuthService is the login flow with device binding.
type AuthService struct {
	users    *UserService
	sessions domain.SessionStore
	ttl      time.Duration
	now      func() time.Time
}

func NewAuthService(users *UserService, sessions domain.SessionStore, ttl time.Duration) *AuthService {
	return &AuthService{users: users, sessions: sessions, ttl: ttl, now: time.Now}
}

// Login checks the password and the device binding. An empty deviceID gets a
// fresh one; an unbound, non-exempt user is bound to the device used here.
func (s *AuthService) Login(ctx context.Context, username, password, deviceID string) (LoginResult, error) {
	u, err := s.users.byUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return LoginResult{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, domain.ErrInvalidCredentials
	}

	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	if !u.DeviceAllowed(deviceID) {
		log.Warn().Str("user", u.Username).Msg("login from unbound device rejected")
		return LoginResult{}, domain.ErrDeviceMismatch
	}
	if u.DeviceToken == "" && !u.DeviceExempt {
		u.DeviceToken = deviceID
		u.UpdatedAt = s.now().UTC()
		if err := s.users.store(ctx, u); err != nil {
			return LoginResult{}, fmt.Errorf("bind device: %w", err)
		}
		log.Info().Str("user", u.Username).Msg("device bound")
	}

	now := s.now()
	sess := domain.Session{
		ID:        newSessionID(),
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		DeviceID:  deviceID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	return LoginResult{Session: sess, DeviceID: deviceID, User: u.View()}, nil
}

// Authenticate resolves a session for a request coming from deviceID. A session
// whose device no longer matches the user's binding is destroyed.
func (s *AuthService) Authenticate(ctx context.Context, sessionID, deviceID string) (domain.Session, error) {
	if sessionID == "" {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	u, err := s.users.byID(ctx, sess.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		_ = s.sessions.Delete(ctx, sessionID)
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	if !u.DeviceExempt && (sess.DeviceID != deviceID || !u.DeviceAllowed(deviceID)) {
		_ = s.sessions.Delete(ctx, sessionID)
		return domain.Session{}, domain.ErrDeviceMismatch
	}
	// role changes apply without logging in again
	sess.Role = u.Role
	return sess, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.sessions.Delete(ctx, sessionID)
}

func newSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString() + uuid.NewString()
	}
	return hex.EncodeToString(b)
}
