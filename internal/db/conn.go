// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	// SQL drivers required for runtime and integration tests.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/toeirei/sigilstore/internal/config"
	"github.com/toeirei/sigilstore/internal/logging"
)

// sqlOpenFunc allows tests to override database opening behavior.
var sqlOpenFunc = sql.Open

// Connector owns the single connection handle to the backing store. The
// handle is created lazily on first use; before every subsequent use the
// Connector pings it and transparently reopens a dead handle with the
// stored configuration.
type Connector struct {
	cfg config.Config
	dsn string

	mu    sync.Mutex
	sqlDB *sql.DB
	bunDB *bun.DB
	// tableEnsured is set after the one-time schema bootstrap. It runs on
	// the first handle only, never on a liveness reconnect.
	tableEnsured bool
}

// NewConnector validates the configuration and prepares a lazy connector.
// No connection is made until DB is first called.
func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return &Connector{cfg: cfg, dsn: dsn}, nil
}

// Engine returns the normalized engine name ("mysql", "postgres", "sqlite").
func (c *Connector) Engine() string {
	if c.cfg.Engine == "" {
		return "mysql"
	}
	return c.cfg.Engine
}

// Table returns the configured table name.
func (c *Connector) Table() string { return c.cfg.Table }

// DB returns a live bun handle, opening or reopening the underlying
// connection as needed. When force is true the current handle is discarded
// regardless of liveness.
func (c *Connector) DB(ctx context.Context, force bool) (*bun.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bunDB != nil && !force {
		if err := c.sqlDB.PingContext(ctx); err == nil {
			return c.bunDB, nil
		}
		logging.Debugf("db: handle for %s reported dead, reconnecting", c.Engine())
	}

	if c.sqlDB != nil {
		_ = c.sqlDB.Close()
		c.sqlDB = nil
		c.bunDB = nil
	}

	if err := c.open(ctx); err != nil {
		return nil, err
	}
	return c.bunDB, nil
}

// open establishes the handle and, on the very first open in this
// connector's lifetime, bootstraps the auth-state table.
func (c *Connector) open(ctx context.Context) error {
	driverName := c.Engine()
	// The pgx stdlib registers driver name "pgx"; map "postgres" to that driver.
	if driverName == "postgres" {
		driverName = "pgx"
	}

	start := time.Now()
	sqlDB, err := sqlOpenFunc(driverName, c.dsn)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrConnect, driverName, err)
	}

	// One shared handle, no pool: all statements serialize on a single
	// network session, which is what gives concurrent in-process callers
	// mutual exclusion of in-flight statements.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("%w: ping %s: %v", ErrConnect, c.Engine(), err)
	}

	c.sqlDB = sqlDB
	c.bunDB = createBunDB(sqlDB, c.Engine())
	logging.Debugf("db: opened %s handle in %s", c.Engine(), time.Since(start))

	if !c.tableEnsured {
		if err := c.ensureTable(ctx); err != nil {
			_ = sqlDB.Close()
			c.sqlDB = nil
			c.bunDB = nil
			return err
		}
		c.tableEnsured = true
	}
	return nil
}

// createBunDB constructs a *bun.DB for the provided *sql.DB and engine.
func createBunDB(sqlDB *sql.DB, engine string) *bun.DB {
	switch engine {
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "sqlite":
		return bun.NewDB(sqlDB, sqlitedialect.New())
	default:
		return bun.NewDB(sqlDB, mysqldialect.New())
	}
}

// ensureTable issues the idempotent schema bootstrap for the two-column
// auth-state table. It must never fail on an existing table and must not
// touch existing data.
func (c *Connector) ensureTable(ctx context.Context) error {
	var ddl string
	table := quoteIdent(c.cfg.Table, c.Engine())
	switch c.Engine() {
	case "postgres":
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id VARCHAR(80) NOT NULL PRIMARY KEY, value JSONB NULL)`, table)
	case "sqlite":
		// SQLite has no native JSON column type; TEXT holds the same payload.
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id VARCHAR(80) NOT NULL PRIMARY KEY, value TEXT NULL)`, table)
	default:
		ddl = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (`id` VARCHAR(80) NOT NULL PRIMARY KEY, `value` JSON NULL)", table)
	}
	if _, err := ExecRaw(ctx, c.bunDB, ddl); err != nil {
		return fmt.Errorf("db: ensure table %s: %w", c.cfg.Table, err)
	}
	logging.Debugf("db: ensured table %s on %s", c.cfg.Table, c.Engine())
	return nil
}

// Close releases the underlying handle. The connector may be reused; the
// next call to DB reopens.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sqlDB == nil {
		return nil
	}
	err := c.sqlDB.Close()
	c.sqlDB = nil
	c.bunDB = nil
	return err
}

// quoteIdent quotes an already-validated identifier for the target engine.
func quoteIdent(name, engine string) string {
	if engine == "mysql" || engine == "" {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}
