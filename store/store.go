package store

import (
	"context"

	"github.com/notesense/notesense/internal/profile"
)

// Store provides collection-oriented access to documents and categories.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// Driver is the database driver interface implemented by each backend.
type Driver interface {
	GetDocument(ctx context.Context, find *FindDocument) (*Document, error)
	CreateDocument(ctx context.Context, create *Document) (*Document, error)
	UpdateDocumentFields(ctx context.Context, update *UpdateDocument) error
	ListDocuments(ctx context.Context, collection string) ([]*Document, error)
	SearchDocuments(ctx context.Context, search *SearchDocuments) ([]*SearchResult, error)

	ListCategories(ctx context.Context) ([]*Category, error)

	// Notifier returns the change feed for document mutations.
	// Delivery is at-least-once with no cross-document ordering.
	Notifier() Notifier

	Migrate(ctx context.Context) error
	Close() error
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) GetDocument(ctx context.Context, find *FindDocument) (*Document, error) {
	return s.driver.GetDocument(ctx, find)
}

func (s *Store) CreateDocument(ctx context.Context, create *Document) (*Document, error) {
	return s.driver.CreateDocument(ctx, create)
}

func (s *Store) UpdateDocumentFields(ctx context.Context, update *UpdateDocument) error {
	return s.driver.UpdateDocumentFields(ctx, update)
}

func (s *Store) ListDocuments(ctx context.Context, collection string) ([]*Document, error) {
	return s.driver.ListDocuments(ctx, collection)
}

func (s *Store) SearchDocuments(ctx context.Context, search *SearchDocuments) ([]*SearchResult, error) {
	return s.driver.SearchDocuments(ctx, search)
}

func (s *Store) ListCategories(ctx context.Context) ([]*Category, error) {
	return s.driver.ListCategories(ctx)
}

func (s *Store) Notifier() Notifier {
	return s.driver.Notifier()
}
