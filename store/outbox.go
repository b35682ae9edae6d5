package store

import (
	"time"
)

type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	MsgType   string
	Attempts  int
	CreatedAt time.Time
}

func (db *DB) EnqueueOutbox(topic string, payload []byte, msgType string) error {
	_, err := db.Exec(db.Q(`INSERT INTO outbox (topic, payload, msg_type, created_at) VALUES (?, ?, ?, ?)`),
		topic, payload, msgType, db.now())
	return err
}

// ListPendingOutbox returns unsent messages oldest first, skipping ones that
// have failed maxAttempts times.
func (db *DB) ListPendingOutbox(limit, maxAttempts int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, payload, msg_type, attempts, created_at FROM outbox
		WHERE sent_at IS NULL AND attempts < ? ORDER BY id LIMIT ?`), maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt dbTime
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.Attempts, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = createdAt.Time
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at=? WHERE id=?`), db.now(), id)
	return err
}

func (db *DB) FailOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET attempts = attempts + 1 WHERE id=?`), id)
	return err
}

func (db *DB) CountPendingOutbox() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`).Scan(&n)
	return n, err
}
