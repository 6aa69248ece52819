package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/notesense/notesense/internal/profile"
	"github.com/notesense/notesense/internal/version"
	"github.com/notesense/notesense/store"
)

// EmbeddingDim is the fixed dimensionality of stored vectors.
// textembedding-gecko class models emit 768-length vectors.
const EmbeddingDim = 768

type DB struct {
	db       *sql.DB
	profile  *profile.Profile
	notifier *Listener
}

// NewDB opens a database specified by a driver-specific data source name,
// usually consisting of at least a database name and connection information.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	postgresDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	driver := DB{
		db:       postgresDB,
		profile:  profile,
		notifier: NewListener(profile.DSN),
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

// Migrate creates the schema: the document table with a pgvector embedding
// column, the categories table, and the NOTIFY trigger feeding the change
// channel on every content mutation.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			category TEXT,
			embedding vector(%d),
			fields JSONB NOT NULL DEFAULT '{}',
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			PRIMARY KEY (collection, id)
		)`, EmbeddingDim),
		`CREATE TABLE IF NOT EXISTS category (
			name TEXT PRIMARY KEY
		)`,
		`CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('document_change', json_build_object(
				'collection', NEW.collection,
				'id', NEW.id,
				'content', NEW.content
			)::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS document_change_trigger ON document`,
		// Fires on insert and on content mutation only; the enrichment
		// write-back touches category/embedding and must not re-trigger.
		`CREATE TRIGGER document_change_trigger
			AFTER INSERT OR UPDATE OF content ON document
			FOR EACH ROW EXECUTE FUNCTION notify_document_change()`,
		`CREATE TABLE IF NOT EXISTS migration_history (
			version TEXT PRIMARY KEY,
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %s", firstLine(stmt))
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
		"INSERT INTO migration_history (version) VALUES ($1) ON CONFLICT (version) DO NOTHING",
		current,
	); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i > 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}

// placeholder returns a positional parameter like $1.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns a comma-joined parameter list like $1, $2, $3.
func placeholders(n int) string {
	list := []string{}
	for i := range n {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
