// Package db provides the database driver factory.
package db

import (
	"github.com/pkg/errors"

	"github.com/notesense/notesense/internal/profile"
	"github.com/notesense/notesense/store"
	"github.com/notesense/notesense/store/db/postgres"
	"github.com/notesense/notesense/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported driver: %s", profile.Driver)
	}
}
