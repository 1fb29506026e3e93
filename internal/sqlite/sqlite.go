package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"time"

	"github.com/mr-karan/certwatch/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB provides access to the certwatch SQLite database.
// Reads go through a pool; writes are serialized over a single connection
// since SQLite in WAL mode allows many readers but only one writer.
type DB struct {
	readDB  *sql.DB
	writeDB *sql.DB
	log     *slog.Logger
}

// Options holds configuration for creating a new DB instance.
type Options struct {
	Logger *slog.Logger
	Config config.SQLiteConfig
}

// New opens the database, runs migrations and returns a DB ready for use.
func New(opts Options) (*DB, error) {
	log := opts.Logger.With("component", "sqlite")

	if err := setupAndRunMigrations(opts.Config.Path, log); err != nil {
		return nil, err
	}

	readDB, err := sql.Open("sqlite", dsn(opts.Config.Path, false))
	if err != nil {
		log.Error("failed to open read database", "error", err, "path", opts.Config.Path)
		return nil, fmt.Errorf("error opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(30 * time.Minute)
	readDB.SetConnMaxIdleTime(5 * time.Minute)

	// _txlock=immediate takes the write lock at BEGIN instead of on first write.
	writeDB, err := sql.Open("sqlite", dsn(opts.Config.Path, true))
	if err != nil {
		readDB.Close()
		log.Error("failed to open write database", "error", err, "path", opts.Config.Path)
		return nil, fmt.Errorf("error opening write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	if err := setPragmas(writeDB); err != nil {
		readDB.Close()
		writeDB.Close()
		log.Error("failed to set pragmas on write database", "error", err)
		return nil, fmt.Errorf("error setting pragmas on write database: %w", err)
	}

	log.Debug("sqlite initialized with read/write separation", "path", opts.Config.Path)

	return &DB{
		readDB:  readDB,
		writeDB: writeDB,
		log:     log,
	}, nil
}

// dsn builds a modernc.org/sqlite connection string. Per-connection pragmas
// are passed as _pragma parameters so every pooled connection gets them.
func dsn(path string, write bool) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "temp_store(MEMORY)")
	if write {
		q.Set("_txlock", "immediate")
	}
	return path + "?" + q.Encode()
}

func setupAndRunMigrations(path string, log *slog.Logger) error {
	migrationDB, err := sql.Open("sqlite", dsn(path, false))
	if err != nil {
		log.Error("failed to open migration database", "error", err, "path", path)
		return fmt.Errorf("error opening migration database: %w", err)
	}
	defer func() {
		_ = migrationDB.Close()
	}()

	log.Debug("running database migrations")
	if err := runMigrations(migrationDB, log); err != nil {
		log.Error("migration failed", "error", err, "path", path)
		return fmt.Errorf("error running migrations: %w", err)
	}
	log.Debug("database migrations completed")
	return nil
}

// setPragmas applies database-wide settings. journal_mode persists in the file
// so running it once on the writer is enough.
func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA journal_size_limit = 5000000",
		"PRAGMA wal_autocheckpoint = 1000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("error setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func runMigrations(db *sql.DB, log *slog.Logger) error {
	migrationFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error creating migrations filesystem: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("error creating migration source driver: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("error creating sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("error creating migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			log.Warn("error closing migration source driver", "error", sourceErr)
		}
		if dbErr != nil {
			log.Warn("error closing migration database driver", "error", dbErr)
		}
	}()

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Debug("no previous migrations found")
	case err != nil:
		log.Error("failed to get current migration version", "error", err)
	default:
		log.Debug("current migration version", "version", version, "dirty", dirty)
		if dirty {
			log.Warn("database is in a dirty migration state, manual intervention may be required")
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("migrations up to date")
			return nil
		}
		return fmt.Errorf("error applying migrations: %w", err)
	}
	return nil
}

// Ping checks that both connections are usable.
func (db *DB) Ping() error {
	if err := db.readDB.Ping(); err != nil {
		return fmt.Errorf("read database unreachable: %w", err)
	}
	if err := db.writeDB.Ping(); err != nil {
		return fmt.Errorf("write database unreachable: %w", err)
	}
	return nil
}

// Close shuts down both database connections.
func (db *DB) Close() error {
	db.log.Debug("closing database connections")
	var errs []error
	if err := db.writeDB.Close(); err != nil {
		db.log.Error("error closing write database", "error", err)
		errs = append(errs, err)
	}
	if err := db.readDB.Close(); err != nil {
		db.log.Error("error closing read database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
