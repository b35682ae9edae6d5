package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AdminUser is a locally managed dashboard login, used when auth.provider is "local".
type AdminUser struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

func (db *DB) CreateAdminUser(u *AdminUser) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC().Truncate(time.Second)
	if _, err := db.Exec(db.Q(`INSERT INTO admin_users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, db.timeArg(now)); err != nil {
		return err
	}
	u.CreatedAt = now
	return nil
}

func (db *DB) GetAdminUserByEmail(email string) (*AdminUser, error) {
	var u AdminUser
	var createdAt dbTime
	err := db.QueryRow(db.Q(`SELECT id, email, password_hash, created_at FROM admin_users WHERE email=?`),
		strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.CreatedAt = createdAt.Time
	return &u, nil
}
