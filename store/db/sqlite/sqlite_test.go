package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/notesense/notesense/internal/profile"
	"github.com/notesense/notesense/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	driver, err := NewDB(&profile.Profile{
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "test.db"),
		Version: "0.3.1",
	})
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	db := driver.(*DB)
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func TestDocumentRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, err := db.CreateDocument(ctx, &store.Document{
		Collection: "notes",
		ID:         "doc-1",
		Content:    "Booked flights to Lisbon",
		Fields:     map[string]any{"source": "mobile"},
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if created.CreatedTs == 0 || created.UpdatedTs == 0 {
		t.Error("timestamps should be set on create")
	}

	doc, err := db.GetDocument(ctx, &store.FindDocument{Collection: "notes", ID: "doc-1"})
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc == nil {
		t.Fatal("document not found")
	}
	if doc.Content != "Booked flights to Lisbon" {
		t.Errorf("unexpected content: %q", doc.Content)
	}
	if doc.Category != nil {
		t.Errorf("new documents have no category, got %v", *doc.Category)
	}
	if doc.Embedding != nil {
		t.Errorf("new documents have no embedding, got %d dims", len(doc.Embedding))
	}
	if doc.Fields["source"] != "mobile" {
		t.Errorf("extra fields lost: %v", doc.Fields)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	db := newTestDB(t)

	doc, err := db.GetDocument(context.Background(), &store.FindDocument{Collection: "notes", ID: "missing"})
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for missing document, got %+v", doc)
	}
}

func TestUpdateDocumentFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.CreateDocument(ctx, &store.Document{
		Collection: "notes",
		ID:         "doc-1",
		Content:    "some note",
		Fields:     map[string]any{"source": "mobile"},
	}); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	vector := []float32{0.25, -0.5, 1.0}
	err := db.UpdateDocumentFields(ctx, &store.UpdateDocument{
		Collection: "notes",
		ID:         "doc-1",
		Category:   strPtr("travel"),
		Embedding:  vector,
	})
	if err != nil {
		t.Fatalf("UpdateDocumentFields failed: %v", err)
	}

	doc, err := db.GetDocument(ctx, &store.FindDocument{Collection: "notes", ID: "doc-1"})
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc.Category == nil || *doc.Category != "travel" {
		t.Errorf("category not written: %v", doc.Category)
	}
	if len(doc.Embedding) != len(vector) {
		t.Fatalf("embedding dimension: got %d, want %d", len(doc.Embedding), len(vector))
	}
	for i := range vector {
		if doc.Embedding[i] != vector[i] {
			t.Errorf("embedding[%d] = %v, want %v", i, doc.Embedding[i], vector[i])
		}
	}
	// Enrichment must not touch other fields.
	if doc.Content != "some note" {
		t.Errorf("content changed: %q", doc.Content)
	}
	if doc.Fields["source"] != "mobile" {
		t.Errorf("extra fields changed: %v", doc.Fields)
	}
}

func TestUpdateDocumentFields_MissingDocument(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateDocumentFields(context.Background(), &store.UpdateDocument{
		Collection: "notes",
		ID:         "missing",
		Category:   strPtr("travel"),
	})
	if err == nil {
		t.Fatal("expected error updating a missing document")
	}
}

func TestCreateDocument_UpsertKeepsCreatedTs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.CreateDocument(ctx, &store.Document{Collection: "notes", ID: "doc-1", Content: "v1"})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if _, err := db.CreateDocument(ctx, &store.Document{Collection: "notes", ID: "doc-1", Content: "v2"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	doc, err := db.GetDocument(ctx, &store.FindDocument{Collection: "notes", ID: "doc-1"})
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc.Content != "v2" {
		t.Errorf("content not replaced: %q", doc.Content)
	}
	if doc.CreatedTs != first.CreatedTs {
		t.Errorf("created_ts changed on upsert: %d vs %d", doc.CreatedTs, first.CreatedTs)
	}
}

func TestSearchDocuments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Unit vectors at known angles to the query vector (1, 0):
	// exact is at 0 degrees, close at ~5 (distance ~0.004), borderline at
	// 45 (distance ~0.293), far at 90 (distance 1).
	docs := map[string][]float32{
		"exact":      {1, 0},
		"close":      {0.9961947, 0.0871557},
		"borderline": {0.7071068, 0.7071068},
		"far":        {0, 1},
	}
	for id, vec := range docs {
		if _, err := db.CreateDocument(ctx, &store.Document{Collection: "notes", ID: id, Content: id}); err != nil {
			t.Fatalf("CreateDocument(%s) failed: %v", id, err)
		}
		if err := db.UpdateDocumentFields(ctx, &store.UpdateDocument{
			Collection: "notes", ID: id, Category: strPtr("travel"), Embedding: vec,
		}); err != nil {
			t.Fatalf("UpdateDocumentFields(%s) failed: %v", id, err)
		}
	}
	// An unenriched document never matches.
	if _, err := db.CreateDocument(ctx, &store.Document{Collection: "notes", ID: "pending", Content: "pending"}); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	results, err := db.SearchDocuments(ctx, &store.SearchDocuments{
		Collection:  "notes",
		Vector:      []float32{1, 0},
		Limit:       5,
		MaxDistance: 0.3,
	})
	if err != nil {
		t.Fatalf("SearchDocuments failed: %v", err)
	}

	want := []string{"exact", "close", "borderline"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, id := range want {
		if results[i].Document.ID != id {
			t.Errorf("result %d: got %q, want %q", i, results[i].Document.ID, id)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Error("results must be ordered by ascending distance")
		}
	}
}

func TestSearchDocuments_LimitApplied(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := db.CreateDocument(ctx, &store.Document{Collection: "notes", ID: id, Content: id}); err != nil {
			t.Fatalf("CreateDocument failed: %v", err)
		}
		if err := db.UpdateDocumentFields(ctx, &store.UpdateDocument{
			Collection: "notes", ID: id, Category: strPtr("travel"), Embedding: []float32{1, 0},
		}); err != nil {
			t.Fatalf("UpdateDocumentFields failed: %v", err)
		}
	}

	results, err := db.SearchDocuments(ctx, &store.SearchDocuments{
		Collection:  "notes",
		Vector:      []float32{1, 0},
		Limit:       2,
		MaxDistance: 0.3,
	})
	if err != nil {
		t.Fatalf("SearchDocuments failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Equal distances tie-break by id for stable paging.
	if results[0].Document.ID != "a" || results[1].Document.ID != "b" {
		t.Errorf("tie-break by id violated: %q, %q", results[0].Document.ID, results[1].Document.ID)
	}
}

func TestChangeFeed(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := db.Notifier().Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := db.CreateDocument(ctx, &store.Document{Collection: "notes", ID: "doc-1", Content: "hello"}); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}

	select {
	case event := <-events:
		if event.Collection != "notes" || event.DocID != "doc-1" || event.Content != "hello" {
			t.Errorf("unexpected event: %+v", event)
		}
		if event.ID == "" {
			t.Error("event ID should be set")
		}
	case <-time.After(time.Second):
		t.Fatal("no change event after content write")
	}

	// The enrichment write-back must not re-trigger the feed.
	if err := db.UpdateDocumentFields(ctx, &store.UpdateDocument{
		Collection: "notes", ID: "doc-1", Category: strPtr("travel"), Embedding: []float32{1},
	}); err != nil {
		t.Fatalf("UpdateDocumentFields failed: %v", err)
	}

	select {
	case event := <-events:
		t.Fatalf("unexpected event after field update: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCategories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"travel", "food"} {
		if _, err := db.db.ExecContext(ctx, "INSERT INTO category (name) VALUES (?)", name); err != nil {
			t.Fatalf("insert category failed: %v", err)
		}
	}

	categories, err := db.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories failed: %v", err)
	}
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(categories))
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name   string
		a, b   []float32
		want   float64
		wantOK bool
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0, true},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1, true},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2, true},
		{"dimension mismatch", []float32{1, 0}, []float32{1}, 0, false},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0, false},
		{"empty", nil, nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cosineDistance(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(float64(got)-tt.want) > 1e-6 {
				t.Errorf("distance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorBlobRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.25, 0}
	blob := vectorToBLOB(vec)
	back, err := blobToVector(blob)
	if err != nil {
		t.Fatalf("blobToVector failed: %v", err)
	}
	if len(back) != len(vec) {
		t.Fatalf("length mismatch: %d vs %d", len(back), len(vec))
	}
	for i := range vec {
		if back[i] != vec[i] {
			t.Errorf("element %d: %v != %v", i, back[i], vec[i])
		}
	}

	if blob := vectorToBLOB(nil); blob != nil {
		t.Error("nil vector should encode as nil")
	}
	if _, err := blobToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestMigrate_SchemaVersionTracking(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "versioned.db")

	openAt := func(release string) *DB {
		t.Helper()
		driver, err := NewDB(&profile.Profile{Driver: "sqlite", DSN: dsn, Version: release})
		if err != nil {
			t.Fatalf("NewDB failed: %v", err)
		}
		return driver.(*DB)
	}

	db := openAt("0.3.1")
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	// Same release migrating again is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("repeated Migrate failed: %v", err)
	}

	var recorded string
	if err := db.GetDB().QueryRowContext(ctx,
		"SELECT version FROM migration_history ORDER BY created_ts DESC, version DESC LIMIT 1",
	).Scan(&recorded); err != nil {
		t.Fatalf("read migration history: %v", err)
	}
	// Patch releases share the minor release's schema version.
	if recorded != "0.3.0" {
		t.Errorf("recorded schema version = %q, want %q", recorded, "0.3.0")
	}
	db.Close()

	// An older binary must refuse a schema written by a newer release.
	old := openAt("0.2.0")
	if err := old.Migrate(ctx); err == nil {
		t.Error("expected downgrade to be rejected")
	}
	old.Close()

	// A newer release migrates and records its own schema version.
	next := openAt("0.4.2")
	if err := next.Migrate(ctx); err != nil {
		t.Fatalf("upgrade Migrate failed: %v", err)
	}
	defer next.Close()

	rows, err := next.GetDB().QueryContext(ctx, "SELECT version FROM migration_history ORDER BY version")
	if err != nil {
		t.Fatalf("read migration history: %v", err)
	}
	defer rows.Close()
	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan version: %v", err)
		}
		versions = append(versions, v)
	}
	if len(versions) != 2 || versions[0] != "0.3.0" || versions[1] != "0.4.0" {
		t.Errorf("unexpected migration history: %v", versions)
	}
}
