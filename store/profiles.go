package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is a customer account. The dashboard's Customers and Settings pages
// both read from this table.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const profileColumns = `id, email, full_name, avatar_url, phone, address, created_at, updated_at`

func (db *DB) CreateProfile(p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	now := time.Now().UTC()
	_, err := db.Exec(db.Q(`INSERT INTO profiles (`+profileColumns+`) VALUES (`+placeholders(8)+`)`),
		p.ID, p.Email, p.FullName, p.AvatarURL, p.Phone, p.Address, db.timeArg(now), db.timeArg(now))
	if err != nil {
		return err
	}
	p.CreatedAt, p.UpdatedAt = now.Truncate(time.Second), now.Truncate(time.Second)
	db.emitChange("profiles", "INSERT", p.ID)
	return nil
}

func (db *DB) UpdateProfile(p *Profile) error {
	result, err := db.Exec(db.Q(`UPDATE profiles SET full_name=?, avatar_url=?, phone=?, address=?, updated_at=? WHERE id=?`),
		p.FullName, p.AvatarURL, p.Phone, p.Address, db.now(), p.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	db.emitChange("profiles", "UPDATE", p.ID)
	return nil
}

func (db *DB) GetProfile(id string) (*Profile, error) {
	row := db.QueryRow(db.Q(`SELECT `+profileColumns+` FROM profiles WHERE id=?`), id)
	return scanProfile(row)
}

func (db *DB) GetProfileByEmail(email string) (*Profile, error) {
	row := db.QueryRow(db.Q(`SELECT `+profileColumns+` FROM profiles WHERE email=?`), strings.ToLower(strings.TrimSpace(email)))
	return scanProfile(row)
}

// ListProfiles returns the newest profiles first.
func (db *DB) ListProfiles(limit int) ([]*Profile, error) {
	rows, err := db.Query(db.Q(`SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC, email LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (db *DB) CountProfiles() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var createdAt, updatedAt dbTime
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.Phone, &p.Address, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}
