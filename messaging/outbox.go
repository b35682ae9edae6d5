package messaging

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"storedesk/store"
)

const (
	outboxBatchSize   = 50
	outboxMaxAttempts = 10
)

// OutboxStore is the part of the store the drainer works against.
type OutboxStore interface {
	ListPendingOutbox(limit, maxAttempts int) ([]*store.OutboxMessage, error)
	AckOutbox(id int64) error
	FailOutbox(id int64) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// OutboxDrainer periodically publishes pending outbox rows.
type OutboxDrainer struct {
	db       OutboxStore
	pub      Publisher
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewOutboxDrainer(db OutboxStore, pub Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxDrainer{db: db, pub: pub, interval: interval, stop: make(chan struct{})}
}

func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.Drain(context.Background())
			}
		}
	}()
}

func (d *OutboxDrainer) Stop() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

// Drain sends one batch. It returns the number of messages acknowledged.
// When publishing is disabled the rows stay pending without counting attempts.
func (d *OutboxDrainer) Drain(ctx context.Context) int {
	msgs, err := d.db.ListPendingOutbox(outboxBatchSize, outboxMaxAttempts)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, m := range msgs {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := d.pub.Publish(pctx, m.Topic, m.Payload)
		cancel()
		if errors.Is(err, ErrDisabled) {
			return sent
		}
		if err != nil {
			log.Printf("outbox: publish %d (%s) to %s: %v", m.ID, m.MsgType, m.Topic, err)
			if err := d.db.FailOutbox(m.ID); err != nil {
				log.Printf("outbox: record failure %d: %v", m.ID, err)
			}
			if m.Attempts+1 >= outboxMaxAttempts {
				log.Printf("outbox: giving up on %d after %d attempts", m.ID, outboxMaxAttempts)
			}
			continue
		}
		if err := d.db.AckOutbox(m.ID); err != nil {
			log.Printf("outbox: ack %d: %v", m.ID, err)
			continue
		}
		sent++
	}
	return sent
}
