package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"storedesk/auth"
	"storedesk/store"
)

// SignIn authenticates an admin and records the session start.
func (e *Engine) SignIn(ctx context.Context, email, password string) (*auth.Identity, error) {
	id, err := e.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	e.Events.Emit(Event{Type: EventUserSignedIn, Payload: SessionEvent{Email: id.Email, Provider: id.Provider}})
	return id, nil
}

// ValidateSession re-checks a signed-in identity with the auth provider.
func (e *Engine) ValidateSession(ctx context.Context, id *auth.Identity) error {
	err := e.auth.Validate(ctx, id)
	if errors.Is(err, auth.ErrInvalidCredentials) && id != nil {
		e.logFn("engine: session for %s no longer valid", id.Email)
	}
	return err
}

// SignOut ends the session with the provider. The local session is cleared by
// the caller whatever the provider answers.
func (e *Engine) SignOut(ctx context.Context, id *auth.Identity) error {
	if id == nil {
		return nil
	}
	err := e.auth.Logout(ctx, id)
	e.Events.Emit(Event{Type: EventUserSignedOut, Payload: SessionEvent{Email: id.Email, Provider: id.Provider}})
	return err
}

// EnsureProfile returns the profile for email, creating an empty one on first use.
func (e *Engine) EnsureProfile(email string) (*store.Profile, error) {
	p, err := e.db.GetProfileByEmail(email)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	p = &store.Profile{Email: email}
	if err := e.db.CreateProfile(p); err != nil {
		return nil, fmt.Errorf("create profile for %s: %w", email, err)
	}
	return p, nil
}

// ProfileUpdate carries the editable profile fields from Settings.
type ProfileUpdate struct {
	FullName string
	Phone    string
	Address  string
}

// UpdateProfile applies u to the profile and emits one event per changed field.
func (e *Engine) UpdateProfile(ctx context.Context, profileID string, u ProfileUpdate, actor string) (*store.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := e.db.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	next := *p
	next.FullName = strings.TrimSpace(u.FullName)
	next.Phone = strings.TrimSpace(u.Phone)
	next.Address = strings.TrimSpace(u.Address)
	if err := e.db.UpdateProfile(&next); err != nil {
		return nil, err
	}
	for _, f := range []struct{ name, old, cur string }{
		{"full_name", p.FullName, next.FullName},
		{"phone", p.Phone, next.Phone},
		{"address", p.Address, next.Address},
	} {
		if f.old != f.cur {
			e.Events.Emit(Event{Type: EventProfileUpdated, Payload: ProfileUpdatedEvent{
				ProfileID: profileID, Field: f.name, OldValue: f.old, NewValue: f.cur, Actor: actor,
			}})
		}
	}
	return &next, nil
}

// UploadAvatar stores an avatar image and points the profile at it.
func (e *Engine) UploadAvatar(ctx context.Context, profileID string, r io.Reader, size int64, contentType, actor string) (*store.Profile, error) {
	p, err := e.db.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	url, err := e.blobs.PutAvatar(ctx, profileID, r, size, contentType)
	if err != nil {
		return nil, err
	}
	old := p.AvatarURL
	p.AvatarURL = url
	if err := e.db.UpdateProfile(p); err != nil {
		return nil, err
	}
	e.Events.Emit(Event{Type: EventProfileUpdated, Payload: ProfileUpdatedEvent{
		ProfileID: profileID, Field: "avatar_url", OldValue: old, NewValue: url, Actor: actor,
	}})
	return p, nil
}
