package engine

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"storedesk/auth"
	"storedesk/backend"
	"storedesk/blobstore"
	"storedesk/config"
	"storedesk/dashboard"
	"storedesk/fulfillment"
	"storedesk/messaging"
	"storedesk/realtime"
	"storedesk/rpc"
	"storedesk/statcache"
	"storedesk/store"
)

type LogFunc func(format string, args ...any)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	PGPool     *pgxpool.Pool // LISTEN connection source; nil on SQLite
	StatCache  *statcache.Manager
	Backend    *backend.Client
	MsgClient  *messaging.Client
	Blobs      *blobstore.Store
	LogFunc    LogFunc
	Debug      bool
}

type Engine struct {
	cfg         *config.Config
	configPath  string
	db          *store.DB
	pgPool      *pgxpool.Pool
	hub         *realtime.Hub
	statCache   *statcache.Manager
	backend     *backend.Client
	msgClient   *messaging.Client
	blobs       *blobstore.Store
	dashboard   *dashboard.Service
	rpc         *rpc.Registry
	fulfillment *fulfillment.Service
	auth        auth.Authenticator
	listener    *realtime.PGListener
	Events      *EventBus
	logFn       LogFunc
	debug       bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu                 sync.Mutex // guards cfg mutations and connection flags
	backendConnected   bool
	messagingConnected bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		pgPool:     c.PGPool,
		hub:        realtime.NewHub(),
		statCache:  c.StatCache,
		backend:    c.Backend,
		msgClient:  c.MsgClient,
		blobs:      c.Blobs,
		Events:     NewEventBus(),
		logFn:      logFn,
		debug:      c.Debug,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (e *Engine) Start() error {
	fe := &fulfillmentEmitter{bus: e.Events}
	var out fulfillment.Outbound
	if e.msgClient != nil {
		out = e.msgClient
	}
	e.fulfillment = fulfillment.NewService(e.db, fe, out, e.cfg.InstanceID, e.cfg.Messaging.EventsTopic)

	e.dashboard = dashboard.New(e.db, e.hub, e.statCache, dashboard.Options{
		RecentDays:  e.cfg.Dashboard.RecentDays,
		RecentLimit: e.cfg.Dashboard.RecentLimit,
	})

	e.rpc = rpc.NewRegistry()
	if err := rpc.RegisterBuiltins(e.rpc, rpc.Builtins{
		DB:                e.db,
		Dashboard:         e.dashboard,
		Cache:             e.statCache,
		LowStockThreshold: e.LowStockThreshold,
	}); err != nil {
		return fmt.Errorf("engine: register procedures: %w", err)
	}

	switch e.cfg.Auth.Provider {
	case "hosted":
		if e.backend == nil {
			return fmt.Errorf("engine: hosted auth requires a backend client")
		}
		e.auth = auth.NewHosted(e.backend)
	default:
		if err := auth.EnsureAdmin(e.db, e.cfg.Auth.Local.AdminEmail, e.cfg.Auth.Local.AdminPassword); err != nil {
			return err
		}
		e.auth = auth.NewLocal(e.db)
	}

	e.wireEventHandlers()
	e.startChangeFeed()
	e.rollupRecent()

	e.checkConnectionStatus()
	e.wg.Add(1)
	go e.connectionHealthLoop()

	e.logFn("engine: started (auth=%s, database=%s)", e.cfg.Auth.Provider, e.db.Driver())
	return nil
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
		if e.listener != nil {
			<-e.listener.Done()
		}
		e.logFn("engine: stopped")
	})
}

// Accessors
func (e *Engine) DB() *store.DB                     { return e.db }
func (e *Engine) AppConfig() *config.Config         { return e.cfg }
func (e *Engine) ConfigPath() string                { return e.configPath }
func (e *Engine) Hub() *realtime.Hub                { return e.hub }
func (e *Engine) StatCache() *statcache.Manager     { return e.statCache }
func (e *Engine) Dashboard() *dashboard.Service     { return e.dashboard }
func (e *Engine) RPC() *rpc.Registry                { return e.rpc }
func (e *Engine) Fulfillment() *fulfillment.Service { return e.fulfillment }
func (e *Engine) Authenticator() auth.Authenticator { return e.auth }
func (e *Engine) Backend() *backend.Client          { return e.backend }
func (e *Engine) MsgClient() *messaging.Client      { return e.msgClient }
func (e *Engine) Blobs() *blobstore.Store           { return e.blobs }
func (e *Engine) Debug() bool                       { return e.debug }

// LowStockThreshold returns the current inventory alert threshold.
func (e *Engine) LowStockThreshold() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Inventory.LowStockThreshold
}

// SetLowStockThreshold changes the inventory alert threshold and persists the config.
func (e *Engine) SetLowStockThreshold(n int, actor string) error {
	if n < 0 {
		return fmt.Errorf("engine: threshold must not be negative")
	}
	e.mu.Lock()
	old := e.cfg.Inventory.LowStockThreshold
	e.cfg.Inventory.LowStockThreshold = n
	err := e.saveConfigLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventSettingsChanged, Payload: SettingsChangedEvent{
		Key:      "inventory.low_stock_threshold",
		OldValue: strconv.Itoa(old),
		NewValue: strconv.Itoa(n),
		Actor:    actor,
	}})
	return nil
}

func (e *Engine) saveConfigLocked() error {
	if e.configPath == "" {
		return nil
	}
	if err := e.cfg.Save(e.configPath); err != nil {
		return fmt.Errorf("engine: save config: %w", err)
	}
	return nil
}

// BackendConnected reports the last observed hosted backend health.
func (e *Engine) BackendConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backendConnected
}

func (e *Engine) MessagingConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messagingConnected
}

func (e *Engine) checkConnectionStatus() {
	if e.backend != nil && e.backend.BaseURL() != "" {
		ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
		err := e.backend.Ping(ctx)
		cancel()
		if changed := e.setConnected(&e.backendConnected, err == nil); changed {
			if err == nil {
				e.Events.Emit(Event{Type: EventBackendConnected, Payload: ConnectionEvent{Detail: "hosted backend connected"}})
			} else {
				e.Events.Emit(Event{Type: EventBackendDisconnected, Payload: ConnectionEvent{Detail: err.Error()}})
			}
		}
	}

	if e.msgClient != nil && e.msgClient.Enabled() {
		ok := e.msgClient.IsConnected()
		if changed := e.setConnected(&e.messagingConnected, ok); changed {
			if ok {
				e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
			} else {
				e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
			}
		}
	}
}

func (e *Engine) setConnected(flag *bool, ok bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if *flag == ok {
		return false
	}
	*flag = ok
	return true
}

func (e *Engine) connectionHealthLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// ReconfigureBackend applies hosted backend config changes live.
func (e *Engine) ReconfigureBackend() {
	if e.backend == nil {
		return
	}
	h := e.cfg.Auth.Hosted
	e.backend.Reconfigure(h.BaseURL, h.APIKey, h.Timeout)
	e.logFn("engine: backend reconfigured (%s)", h.BaseURL)
	e.checkConnectionStatus()
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if e.msgClient == nil {
		return
	}
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured (%s)", e.cfg.Messaging.Backend)
	}
	e.checkConnectionStatus()
}
