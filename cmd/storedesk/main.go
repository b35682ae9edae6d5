package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"storedesk/backend"
	"storedesk/blobstore"
	"storedesk/config"
	"storedesk/engine"
	"storedesk/messaging"
	"storedesk/statcache"
	"storedesk/store"
	"storedesk/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "storedesk.yaml", "path to config file")
	debug := flag.Bool("debug", false, "log every request")
	flag.Parse()

	if *showVersion {
		fmt.Println("storedesk", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("storedesk: database open (%s)", cfg.Database.Driver)

	// LISTEN/NOTIFY needs a pool of its own; database/sql hides the raw connection.
	var pgPool *pgxpool.Pool
	if cfg.Database.Driver == "postgres" {
		pgPool, err = pgxpool.New(context.Background(), cfg.Database.Postgres.DSN())
		if err != nil {
			log.Fatalf("open postgres pool: %v", err)
		}
		defer pgPool.Close()
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("storedesk: redis not available (%v), statistics will be computed on every read", err)
	} else {
		log.Printf("storedesk: redis connected (%s)", cfg.Redis.Address)
	}
	cancel()
	defer redisClient.Close()

	statCache := statcache.NewManager(statcache.NewRedisStore(redisClient), cfg.Redis.StatsTTL)
	statCache.Reset(context.Background())

	// Hosted auth backend
	var backendClient *backend.Client
	if cfg.Auth.Provider == "hosted" {
		backendClient = backend.NewClient(cfg.Auth.Hosted.BaseURL, cfg.Auth.Hosted.APIKey, cfg.Auth.Hosted.Timeout)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := backendClient.Ping(ctx); err != nil {
			log.Printf("storedesk: auth backend not available (%v)", err)
		} else {
			log.Printf("storedesk: auth backend connected (%s)", backendClient.BaseURL())
		}
		cancel()
	}

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("storedesk: messaging connect failed (%v)", err)
	} else if msgClient.Enabled() {
		log.Printf("storedesk: messaging connected (%s)", cfg.Messaging.Backend)
	}
	defer msgClient.Close()

	// Avatar storage
	blobs, err := blobstore.New(&cfg.Storage)
	if err != nil {
		log.Fatalf("blob storage: %v", err)
	}
	if blobs.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := blobs.EnsureBucket(ctx); err != nil {
			log.Printf("storedesk: avatar bucket unavailable (%v)", err)
		}
		cancel()
	}

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		PGPool:     pgPool,
		StatCache:  statCache,
		Backend:    backendClient,
		MsgClient:  msgClient,
		Blobs:      blobs,
		Debug:      *debug,
	})
	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	// Outbox drainer
	drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
	drainer.Start()
	defer drainer.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("storedesk: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("storedesk: ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("storedesk: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("storedesk: stopped")
}
