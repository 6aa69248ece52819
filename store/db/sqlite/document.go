package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/notesense/notesense/store"
)

func (d *DB) GetDocument(ctx context.Context, find *store.FindDocument) (*store.Document, error) {
	query := `
		SELECT collection, id, content, category, embedding, fields, created_ts, updated_ts
		FROM document
		WHERE collection = ? AND id = ?`

	row := d.db.QueryRowContext(ctx, query, find.Collection, find.ID)
	doc, err := scanDocument(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get document")
	}
	return doc, nil
}

func (d *DB) CreateDocument(ctx context.Context, create *store.Document) (*store.Document, error) {
	fields, err := store.MarshalFields(create.Fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal document fields")
	}

	now := time.Now().Unix()
	stmt := `
		INSERT INTO document (collection, id, content, category, embedding, fields, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id)
		DO UPDATE SET content = excluded.content, fields = excluded.fields, updated_ts = excluded.updated_ts`

	_, err = d.db.ExecContext(ctx, stmt,
		create.Collection,
		create.ID,
		create.Content,
		create.Category,
		vectorToBLOB(create.Embedding),
		string(fields),
		now,
		now,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}
	create.CreatedTs = now
	create.UpdatedTs = now

	// Content write: emit a change event for the enrichment feed.
	d.notifier.Publish(ctx, &store.ChangeEvent{
		ID:         uuid.NewString(),
		Collection: create.Collection,
		DocID:      create.ID,
		Content:    create.Content,
	})

	return create, nil
}

// UpdateDocumentFields writes only category and embedding. It deliberately
// does not publish a change event: the enrichment write-back must not
// re-trigger enrichment.
func (d *DB) UpdateDocumentFields(ctx context.Context, update *store.UpdateDocument) error {
	stmt := `UPDATE document SET category = ?, embedding = ?, updated_ts = ? WHERE collection = ? AND id = ?`

	result, err := d.db.ExecContext(ctx, stmt,
		update.Category,
		vectorToBLOB(update.Embedding),
		time.Now().Unix(),
		update.Collection,
		update.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update document fields")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("document %s/%s not found", update.Collection, update.ID)
	}
	return nil
}

func (d *DB) ListDocuments(ctx context.Context, collection string) ([]*store.Document, error) {
	query := `
		SELECT collection, id, content, category, embedding, fields, created_ts, updated_ts
		FROM document
		WHERE collection = ?
		ORDER BY id`

	rows, err := d.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	list := []*store.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

// SearchDocuments computes cosine distance in the application layer over a
// full collection scan. Results are ordered (distance, id) so ties rank the
// same way on every query.
func (d *DB) SearchDocuments(ctx context.Context, search *store.SearchDocuments) ([]*store.SearchResult, error) {
	docs, err := d.ListDocuments(ctx, search.Collection)
	if err != nil {
		return nil, err
	}

	results := []*store.SearchResult{}
	for _, doc := range docs {
		if doc.Embedding == nil {
			continue
		}
		distance, ok := cosineDistance(search.Vector, doc.Embedding)
		if !ok || distance > search.MaxDistance {
			continue
		}
		results = append(results, &store.SearchResult{Document: doc, Distance: distance})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Document.ID < results[j].Document.ID
	})

	if search.Limit > 0 && len(results) > search.Limit {
		results = results[:search.Limit]
	}
	return results, nil
}

func scanDocument(scan func(dest ...any) error) (*store.Document, error) {
	var doc store.Document
	var category sql.NullString
	var embedding []byte
	var fields string
	err := scan(
		&doc.Collection,
		&doc.ID,
		&doc.Content,
		&category,
		&embedding,
		&fields,
		&doc.CreatedTs,
		&doc.UpdatedTs,
	)
	if err != nil {
		return nil, err
	}
	if category.Valid {
		doc.Category = &category.String
	}
	if doc.Embedding, err = blobToVector(embedding); err != nil {
		return nil, err
	}
	if doc.Fields, err = store.UnmarshalFields([]byte(fields)); err != nil {
		return nil, err
	}
	return &doc, nil
}

// vectorToBLOB encodes a vector as little-endian float32 bytes, nil for absent.
func vectorToBLOB(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

func blobToVector(blob []byte) ([]float32, error) {
	if blob == nil {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid embedding blob length: %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vec, nil
}

// cosineDistance returns 1 - cosine similarity. The second return is false
// when either vector has zero norm or the dimensions differ.
func cosineDistance(a, b []float32) (float32, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))), true
}
