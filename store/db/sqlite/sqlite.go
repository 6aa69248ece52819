package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/notesense/notesense/internal/profile"
	"github.com/notesense/notesense/internal/version"
	"github.com/notesense/notesense/store"
)

// SQLite is supported for development and single-user deployments. Vectors
// are stored as little-endian float32 BLOBs and similarity search runs as a
// linear scan in the application layer; there is no database-side index, so
// large collections belong on the postgres driver.

type DB struct {
	db       *sql.DB
	profile  *profile.Profile
	notifier *Notifier
}

// NewDB opens a database specified by its driver-specific data source name.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode with a busy timeout avoids locking issues; a single
	// connection is optimal with the modernc driver.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{
		db:       sqliteDB,
		profile:  profile,
		notifier: NewNotifier(),
	}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Notifier() store.Notifier {
	return d.notifier
}

func (d *DB) Close() error {
	d.notifier.Close()
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS document (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			category TEXT,
			embedding BLOB,
			fields TEXT NOT NULL DEFAULT '{}',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS category (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS migration_history (
			version TEXT PRIMARY KEY,
			created_ts BIGINT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to execute migration")
		}
	}
	return d.recordSchemaVersion(ctx)
}

// recordSchemaVersion tracks which release last migrated the database and
// refuses to run against a schema written by a newer release.
func (d *DB) recordSchemaVersion(ctx context.Context) error {
	current := version.GetSchemaVersion(d.profile.Version)

	var latest string
	err := d.db.QueryRowContext(ctx,
		"SELECT version FROM migration_history ORDER BY created_ts DESC, version DESC LIMIT 1",
	).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to read migration history")
	}

	if latest == current {
		return nil
	}
	if latest != "" && version.IsVersionGreaterOrEqualThan(latest, current) {
		return errors.Errorf("database schema version %s is newer than binary version %s", latest, current)
	}

	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO migration_history (version, created_ts) VALUES (?, ?)",
		current, time.Now().Unix(),
	); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}
