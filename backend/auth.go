package backend

import (
	"context"
	"time"
)

type User struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	LastSignIn  time.Time      `json:"last_sign_in_at"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

// Session is the token pair returned by a successful sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	if err := c.post(ctx, "/auth/v1/token?grant_type=password", "", &passwordGrant{Email: email, Password: password}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetUser returns the user that owns accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var u User
	if err := c.get(ctx, "/auth/v1/user", accessToken, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SignOut revokes accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.post(ctx, "/auth/v1/logout", accessToken, nil, nil)
}

// Ping checks that the auth service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/auth/v1/health", "", nil)
}
