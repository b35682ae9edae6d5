package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGListener holds a dedicated pool connection on a NOTIFY channel and
// republishes each notification into a Hub.
type PGListener struct {
	pool    *pgxpool.Pool
	hub     *Hub
	channel string
	done    chan struct{}
}

func NewPGListener(pool *pgxpool.Pool, hub *Hub, channel string) *PGListener {
	return &PGListener{pool: pool, hub: hub, channel: channel, done: make(chan struct{})}
}

// Run listens until ctx is cancelled, reconnecting with backoff on connection loss.
func (l *PGListener) Run(ctx context.Context) {
	defer close(l.done)
	backoff := time.Second
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("realtime: listener on %s lost (%v), retrying in %s", l.channel, err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// Done is closed once Run returns.
func (l *PGListener) Done() <-chan struct{} { return l.done }

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+l.channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Printf("realtime: listening on %s", l.channel)

	// Anything that changed while we were disconnected is unknown; tell
	// subscribers to refetch.
	for _, name := range []string{ChannelOrders, ChannelProfiles, ChannelProducts} {
		l.hub.Publish(Change{Channel: name, Op: OpResync})
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c, err := DecodeNotification(n.Payload)
		if err != nil {
			log.Printf("realtime: bad payload on %s: %v", l.channel, err)
			continue
		}
		l.hub.Publish(c)
	}
}

// DecodeNotification parses the JSON payload written by the change triggers.
func DecodeNotification(payload string) (Change, error) {
	var raw struct {
		Table string `json:"table"`
		Op    string `json:"op"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Change{}, err
	}
	if raw.Table == "" {
		return Change{}, fmt.Errorf("missing table in %q", payload)
	}
	return Change{Channel: raw.Table, Op: raw.Op, RowID: raw.ID}, nil
}
