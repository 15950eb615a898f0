package domain

import "time"

const (
	RoleAdmin  = "admin"
	RoleDriver = "driver"
)

// PasswordHistoryLimit is how many previous passwords are remembered.
const PasswordHistoryLimit = 4

type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"passwordHash"`
	PasswordHistory []string  `json:"passwordHistory,omitempty"`
	DeviceToken     string    `json:"deviceToken,omitempty"`
	DeviceExempt    bool      `json:"deviceExempt"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DeviceAllowed reports whether a request coming from token may act as u.
// An unbound user accepts any device; the first login binds it.
func (u User) DeviceAllowed(token string) bool {
	if u.DeviceExempt || u.DeviceToken == "" {
		return true
	}
	return u.DeviceToken == token
}

// RotatePassword makes newHash current and pushes the old one onto the history.
func (u *User) RotatePassword(newHash string) {
	if u.PasswordHash != "" {
		u.PasswordHistory = append([]string{u.PasswordHash}, u.PasswordHistory...)
	}
	if len(u.PasswordHistory) > PasswordHistoryLimit {
		u.PasswordHistory = u.PasswordHistory[:PasswordHistoryLimit]
	}
	u.PasswordHash = newHash
}

// UserView is what leaves the service; hashes stay inside.
type UserView struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	DeviceBound  bool      `json:"deviceBound"`
	DeviceExempt bool      `json:"deviceExempt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u User) View() UserView {
	return UserView{
		ID:           u.ID,
		Username:     u.Username,
		Role:         u.Role,
		DeviceBound:  u.DeviceToken != "",
		DeviceExempt: u.DeviceExempt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// EmptyListVersion is served for a driver that has no hotel list yet.
const EmptyListVersion = "empty"

// UserHotels is the ordered hotel list shown to one driver.
type UserHotels struct {
	UserID   string   `json:"userId"`
	HotelIDs []string `json:"hoteles"`
	Version  string   `json:"version,omitempty"`
}

// SetHotels replaces the list keeping first-seen order and clears the version
// so the next read stamps a fresh one.
func (l *UserHotels) SetHotels(ids []string) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	l.HotelIDs = out
	l.Version = ""
}

func (l UserHotels) Contains(hotelID string) bool {
	for _, id := range l.HotelIDs {
		if id == hotelID {
			return true
		}
	}
	return false
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	DeviceID  string    `json:"deviceId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }
