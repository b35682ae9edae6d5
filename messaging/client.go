package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"storedesk/config"
)

// ErrDisabled is returned by Publish when the backend is "none".
var ErrDisabled = errors.New("messaging: publishing disabled")

type transport interface {
	connect(ctx context.Context) error
	publish(ctx context.Context, topic string, data []byte) error
	connected() bool
	close() error
}

// Client publishes event envelopes to Kafka or MQTT.
type Client struct {
	mu  sync.RWMutex
	cfg config.MessagingConfig
	t   transport
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{cfg: *cfg, t: newTransport(cfg)}
}

func newTransport(cfg *config.MessagingConfig) transport {
	switch cfg.Backend {
	case "kafka":
		return &kafkaTransport{brokers: cfg.Kafka.Brokers}
	case "mqtt":
		return &mqttTransport{broker: cfg.MQTT.Broker, clientID: cfg.MQTT.ClientID, qos: cfg.MQTT.QoS}
	default:
		return nil
	}
}

// Connect establishes the broker connection. It is a no-op for the "none" backend.
func (c *Client) Connect() error {
	c.mu.RLock()
	t := c.t
	c.mu.RUnlock()
	if t == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.connect(ctx)
}

func (c *Client) Publish(ctx context.Context, topic string, data []byte) error {
	c.mu.RLock()
	t := c.t
	c.mu.RUnlock()
	if t == nil {
		return ErrDisabled
	}
	return t.publish(ctx, topic, data)
}

// Enabled reports whether a broker backend is configured.
func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t != nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t != nil && c.t.connected()
}

func (c *Client) Backend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Backend
}

// Reconfigure closes the current connection and connects with cfg.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	next := newTransport(cfg)
	c.mu.Lock()
	old := c.t
	c.cfg = *cfg
	c.t = next
	c.mu.Unlock()
	if old != nil {
		if err := old.close(); err != nil {
			log.Printf("messaging: close previous %T: %v", old, err)
		}
	}
	return c.Connect()
}

func (c *Client) Close() error {
	c.mu.Lock()
	t := c.t
	c.t = nil
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.close()
}

type kafkaTransport struct {
	brokers []string
	mu      sync.Mutex
	writer  *kafka.Writer
	ok      bool
}

func (k *kafkaTransport) connect(ctx context.Context) error {
	if len(k.brokers) == 0 {
		return fmt.Errorf("messaging: no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", k.brokers[0])
	if err != nil {
		k.setOK(false)
		return fmt.Errorf("messaging: dial kafka %s: %w", k.brokers[0], err)
	}
	conn.Close()

	k.mu.Lock()
	if k.writer == nil {
		k.writer = &kafka.Writer{
			Addr:                   kafka.TCP(k.brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
		}
	}
	k.ok = true
	k.mu.Unlock()
	return nil
}

func (k *kafkaTransport) publish(ctx context.Context, topic string, data []byte) error {
	k.mu.Lock()
	w := k.writer
	k.mu.Unlock()
	if w == nil {
		return fmt.Errorf("messaging: kafka not connected")
	}
	err := w.WriteMessages(ctx, kafka.Message{Topic: topic, Value: data})
	k.setOK(err == nil)
	return err
}

func (k *kafkaTransport) setOK(ok bool) {
	k.mu.Lock()
	k.ok = ok
	k.mu.Unlock()
}

func (k *kafkaTransport) connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ok
}

func (k *kafkaTransport) close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ok = false
	if k.writer == nil {
		return nil
	}
	err := k.writer.Close()
	k.writer = nil
	return err
}

type mqttTransport struct {
	broker   string
	clientID string
	qos      byte
	mu       sync.Mutex
	client   mqtt.Client
}

func (m *mqttTransport) connect(ctx context.Context) error {
	if m.broker == "" {
		return fmt.Errorf("messaging: no mqtt broker configured")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("messaging: mqtt connection lost: %v", err)
		})
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	timeout := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("messaging: mqtt connect to %s timed out", m.broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("messaging: mqtt connect to %s: %w", m.broker, err)
	}
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return nil
}

func (m *mqttTransport) publish(ctx context.Context, topic string, data []byte) error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return fmt.Errorf("messaging: mqtt not connected")
	}
	tok := client.Publish(topic, m.qos, false, data)
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mqttTransport) connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.IsConnectionOpen()
}

func (m *mqttTransport) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}
