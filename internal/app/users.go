package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"rutas_admin/internal/domain"
)

type CreateUserInput struct {
	Username     string `json:"username" validate:"required,min=3,max=64"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Role         string `json:"role" validate:"required,oneof=admin driver"`
	DeviceExempt bool   `json:"deviceExempt"`
}

type UpdateUserInput struct {
	Role         *string `json:"role" validate:"omitempty,oneof=admin driver"`
	DeviceExempt *bool   `json:"deviceExempt"`
}

type passwordInput struct {
	Password string `validate:"required,min=8,max=72"`
}

// UserService is user administration plus the password rules.
type UserService struct {
	users      collection[domain.User]
	userHotels collection[domain.UserHotels]
	sessions   domain.SessionStore
	pub        domain.ChangePublisher

	hashCost int
	newID    func() string
	now      func() time.Time
}

func NewUserService(s domain.DocumentStore, sessions domain.SessionStore, pub domain.ChangePublisher) *UserService {
	return &UserService{
		users:      newCollection[domain.User](s, domain.CollUsers),
		userHotels: newCollection[domain.UserHotels](s, domain.CollUserHotels),
		sessions:   sessions,
		pub:        pub,
		hashCost:   bcrypt.DefaultCost,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// WithHashCost lowers the bcrypt cost; tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

func (s *UserService) List(ctx context.Context) ([]domain.UserView, error) {
	us, err := s.users.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserView, 0, len(us))
	for _, u := range us {
		out = append(out, u.View())
	}
	return out, nil
}

func (s *UserService) Get(ctx context.Context, id string) (domain.UserView, error) {
	u, err := s.users.get(ctx, id)
	if err != nil {
		return domain.UserView{}, err
	}
	return u.View(), nil
}

func (s *UserService) byID(ctx context.Context, id string) (domain.User, error) {
	return s.users.get(ctx, id)
}

func (s *UserService) byUsername(ctx context.Context, username string) (domain.User, error) {
	us, err := s.users.findBy(ctx, "username", normalizeUsername(username))
	if err != nil {
		return domain.User{}, err
	}
	if len(us) == 0 {
		return domain.User{}, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	return us[0], nil
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (domain.UserView, error) {
	in.Username = normalizeUsername(in.Username)
	if err := validateStruct(in); err != nil {
		return domain.UserView{}, err
	}
	if _, err := s.byUsername(ctx, in.Username); err == nil {
		return domain.UserView{}, domain.ErrUsernameTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.UserView{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return domain.UserView{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := domain.User{
		ID:           s.newID(),
		Username:     in.Username,
		PasswordHash: string(hash),
		DeviceExempt: in.DeviceExempt,
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store(ctx, u); err != nil {
		return domain.UserView{}, err
	}
	return u.View(), nil
}

func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (domain.UserView, error) {
	if err := validateStruct(in); err != nil {
		return domain.UserView{}, err
	}
	u, err := s.users.get(ctx, id)
	if err != nil {
		return domain.UserView{}, err
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.DeviceExempt != nil {
		u.DeviceExempt = *in.DeviceExempt
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.store(ctx, u); err != nil {
		return domain.UserView{}, err
	}
	return u.View(), nil
}

// Delete removes the user with their hotel list and sessions.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.delete(ctx, id); err != nil {
		return err
	}
	if err := s.userHotels.delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.dropSessions(ctx, id)
	s.publish(ctx, id, domain.OpDelete, nil)
	return nil
}

// ResetDevice clears the device binding; the next login binds again.
func (s *UserService) ResetDevice(ctx context.Context, id string) error {
	u, err := s.users.get(ctx, id)
	if err != nil {
		return err
	}
	u.DeviceToken = ""
	u.UpdatedAt = s.now().UTC()
	if err := s.store(ctx, u); err != nil {
		return err
	}
	s.dropSessions(ctx, id)
	return nil
}

// SetPassword is the admin reset. It obeys the same reuse rule as ChangePassword.
func (s *UserService) SetPassword(ctx context.Context, id, password string) error {
	u, err := s.users.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.rotate(ctx, &u, password); err != nil {
		return err
	}
	s.dropSessions(ctx, id)
	return nil
}

// ChangePassword is the user's own change; current must match.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.users.get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return domain.ErrInvalidCredentials
	}
	return s.rotate(ctx, &u, next)
}

// EnsureAdmin creates an exempt admin when username is not taken yet.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if _, err := s.byUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, err
	}
	_, err := s.Create(ctx, CreateUserInput{
		Username:     username,
		Password:     password,
		Role:         domain.RoleAdmin,
		DeviceExempt: true,
	})
	return err == nil, err
}

func (s *UserService) rotate(ctx context.Context, u *domain.User, password string) error {
	if err := validateStruct(passwordInput{Password: password}); err != nil {
		return err
	}
	for _, h := range append([]string{u.PasswordHash}, u.PasswordHistory...) {
		if h != "" && bcrypt.CompareHashAndPassword([]byte(h), []byte(password)) == nil {
			return domain.ErrPasswordReused
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.RotatePassword(string(hash))
	u.UpdatedAt = s.now().UTC()
	return s.store(ctx, *u)
}

func (s *UserService) store(ctx context.Context, u domain.User) error {
	if _, err := s.users.put(ctx, u.ID, u); err != nil {
		return err
	}
	// listeners get the view, never the hashes
	b, err := json.Marshal(u.View())
	if err == nil {
		s.publish(ctx, u.ID, domain.OpUpsert, b)
	}
	return nil
}

func (s *UserService) dropSessions(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if n, err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("drop sessions failed")
	} else if n > 0 {
		log.Info().Str("user", userID).Int("sessions", n).Msg("sessions dropped")
	}
}

func (s *UserService) publish(ctx context.Context, id, op string, data []byte) {
	if s.pub == nil {
		return
	}
	ev := domain.ChangeEvent{Collection: domain.CollUsers, ID: id, Op: op, Data: data, At: s.now().UTC()}
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("publish user change failed")
	}
}

func normalizeUsername(u string) string { return strings.ToLower(strings.TrimSpace(u)) }
