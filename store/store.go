package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storedesk/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrInsufficientStock = errors.New("store: insufficient stock")
	ErrStatusChanged     = errors.New("store: status changed concurrently")
)

// ChangeFunc receives row-level changes for the tables that feed live views.
// Only the SQLite driver calls it; PostgreSQL raises the same changes through
// triggers and NOTIFY.
type ChangeFunc func(table, op, rowID string)

type DB struct {
	*sql.DB
	dialect  Dialect
	driver   string
	onChange ChangeFunc
}

func Open(cfg *config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "sqlite":
		return openSQLite(cfg.SQLite.Path)
	case "postgres":
		return openPostgres(&cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func openSQLite(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := &DB{DB: sqlDB, dialect: sqliteDialect{}, driver: "sqlite"}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func openPostgres(cfg *config.PostgresConfig) (*DB, error) {
	sqlDB, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db := &DB{DB: sqlDB, dialect: postgresDialect{}, driver: "postgres"}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return db, nil
}

func (db *DB) Dialect() Dialect { return db.dialect }
func (db *DB) Driver() string   { return db.driver }

// SetChangeFunc installs the callback for in-process change notifications.
func (db *DB) SetChangeFunc(fn ChangeFunc) { db.onChange = fn }

// Q rewrites ? placeholders for PostgreSQL, passes through for SQLite.
func (db *DB) Q(query string) string {
	if db.driver == "postgres" {
		return Rebind(query)
	}
	return query
}

func (db *DB) migrate() error {
	var schema string
	switch db.driver {
	case "sqlite":
		schema = schemaSQLite
	case "postgres":
		schema = schemaPostgres
	default:
		return fmt.Errorf("no schema for driver: %s", db.driver)
	}
	_, err := db.Exec(schema)
	return err
}

func (db *DB) emitChange(table, op, rowID string) {
	if db.driver != "sqlite" || db.onChange == nil {
		return
	}
	db.onChange(table, op, rowID)
}

// timeArg converts t into the representation each driver stores.
func (db *DB) timeArg(t time.Time) any {
	if db.driver == "postgres" {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func (db *DB) now() any { return db.timeArg(time.Now()) }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
