package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"storedesk/backend"
	"storedesk/store"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
	ErrUnavailable        = errors.New("auth: provider unavailable")
)

// Identity is the signed-in admin carried in the web session.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	AccessToken string `json:"access_token,omitempty"`
	Provider    string `json:"provider"`
}

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
	// Validate checks that an existing session still belongs to a live
	// account. It returns ErrInvalidCredentials once the provider rejects it.
	Validate(ctx context.Context, id *Identity) error
	Logout(ctx context.Context, id *Identity) error
}

// UserStore is the part of the store Local needs.
type UserStore interface {
	GetAdminUserByEmail(email string) (*store.AdminUser, error)
	CreateAdminUser(u *store.AdminUser) error
}

// dummyHash keeps the timing of unknown-user logins close to a real compare.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Local checks bcrypt password hashes kept in admin_users.
type Local struct {
	users UserStore
}

func NewLocal(users UserStore) *Local { return &Local{users: users} }

func (l *Local) Authenticate(_ context.Context, email, password string) (*Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := l.users.GetAdminUserByEmail(email)
	if errors.Is(err, store.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup %s: %w", email, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{UserID: u.ID, Email: u.Email, Provider: "local"}, nil
}

// Validate fails once the admin account has been removed.
func (l *Local) Validate(_ context.Context, id *Identity) error {
	if id == nil {
		return ErrInvalidCredentials
	}
	_, err := l.users.GetAdminUserByEmail(normalizeEmail(id.Email))
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Logout has nothing to revoke for local accounts.
func (l *Local) Logout(context.Context, *Identity) error { return nil }

// EnsureAdmin creates the configured admin account if it does not exist yet.
// An empty password skips seeding.
func EnsureAdmin(users UserStore, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		log.Printf("auth: no local admin password configured, skipping seed")
		return nil
	}
	_, err := users.GetAdminUserByEmail(email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("auth: lookup admin: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := users.CreateAdminUser(&store.AdminUser{Email: email, PasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("auth: create admin: %w", err)
	}
	log.Printf("auth: seeded local admin %s", email)
	return nil
}

// Hosted delegates to the hosted backend's password grant.
type Hosted struct {
	client *backend.Client
}

func NewHosted(client *backend.Client) *Hosted { return &Hosted{client: client} }

func (h *Hosted) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	s, err := h.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Identity{UserID: s.User.ID, Email: s.User.Email, AccessToken: s.AccessToken, Provider: "hosted"}, nil
}

// Validate asks the backend who owns the session token. A revoked or expired
// token, or one that now belongs to another user, is rejected.
func (h *Hosted) Validate(ctx context.Context, id *Identity) error {
	if id == nil || id.AccessToken == "" {
		return ErrInvalidCredentials
	}
	u, err := h.client.GetUser(ctx, id.AccessToken)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if id.UserID != "" && u.ID != id.UserID {
		return ErrInvalidCredentials
	}
	return nil
}

// Logout revokes the session token. A token the service already rejects counts as logged out.
func (h *Hosted) Logout(ctx context.Context, id *Identity) error {
	if id == nil || id.AccessToken == "" {
		return nil
	}
	err := h.client.SignOut(ctx, id.AccessToken)
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return nil
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
