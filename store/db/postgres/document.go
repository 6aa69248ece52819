package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/notesense/notesense/store"
)

func (d *DB) GetDocument(ctx context.Context, find *store.FindDocument) (*store.Document, error) {
	query := `
		SELECT collection, id, content, category, embedding, fields, created_ts, updated_ts
		FROM document
		WHERE collection = ` + placeholder(1) + ` AND id = ` + placeholder(2)

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
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (collection, id)
		DO UPDATE SET content = EXCLUDED.content, fields = EXCLUDED.fields, updated_ts = EXCLUDED.updated_ts
		RETURNING created_ts, updated_ts`

	err = d.db.QueryRowContext(ctx, stmt,
		create.Collection,
		create.ID,
		create.Content,
		create.Category,
		nullableVector(create.Embedding),
		fields,
		now,
		now,
	).Scan(&create.CreatedTs, &create.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create document")
	}
	return create, nil
}

// UpdateDocumentFields writes category and embedding in a single statement,
// leaving every other column untouched. Re-applying the same pair is a no-op
// in effect, which keeps redelivered enrichment runs idempotent.
func (d *DB) UpdateDocumentFields(ctx context.Context, update *store.UpdateDocument) error {
	stmt := `
		UPDATE document
		SET category = ` + placeholder(1) + `, embedding = ` + placeholder(2) + `, updated_ts = ` + placeholder(3) + `
		WHERE collection = ` + placeholder(4) + ` AND id = ` + placeholder(5)

	result, err := d.db.ExecContext(ctx, stmt,
		update.Category,
		nullableVector(update.Embedding),
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
		WHERE collection = ` + placeholder(1) + `
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

// SearchDocuments runs a cosine-distance query over the pgvector column.
// Order is (distance, id) so repeated identical queries rank ties the same way.
func (d *DB) SearchDocuments(ctx context.Context, search *store.SearchDocuments) ([]*store.SearchResult, error) {
	query := `
		SELECT collection, id, content, category, embedding, fields, created_ts, updated_ts,
			embedding <=> ` + placeholder(1) + ` AS distance
		FROM document
		WHERE collection = ` + placeholder(2) + `
			AND embedding IS NOT NULL
			AND embedding <=> ` + placeholder(1) + ` <= ` + placeholder(3) + `
		ORDER BY distance, id
		LIMIT ` + placeholder(4)

	vector := pgvector.NewVector(search.Vector)
	rows, err := d.db.QueryContext(ctx, query, vector, search.Collection, search.MaxDistance, search.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search documents")
	}
	defer rows.Close()

	results := []*store.SearchResult{}
	for rows.Next() {
		var doc store.Document
		var category sql.NullString
		var embedding pgvector.Vector
		var fields []byte
		var distance float32
		err := rows.Scan(
			&doc.Collection,
			&doc.ID,
			&doc.Content,
			&category,
			&embedding,
			&fields,
			&doc.CreatedTs,
			&doc.UpdatedTs,
			&distance,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan search result")
		}
		if category.Valid {
			doc.Category = &category.String
		}
		doc.Embedding = embedding.Slice()
		if doc.Fields, err = store.UnmarshalFields(fields); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal document fields")
		}
		results = append(results, &store.SearchResult{Document: &doc, Distance: distance})
	}
	return results, rows.Err()
}

func scanDocument(scan func(dest ...any) error) (*store.Document, error) {
	var doc store.Document
	var category sql.NullString
	var embedding nullVector
	var fields []byte
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
	doc.Embedding = embedding.slice
	if doc.Fields, err = store.UnmarshalFields(fields); err != nil {
		return nil, err
	}
	return &doc, nil
}

// nullableVector maps an absent embedding to SQL NULL.
func nullableVector(vec []float32) any {
	if vec == nil {
		return nil
	}
	return pgvector.NewVector(vec)
}

// nullVector scans a possibly-NULL pgvector column.
type nullVector struct {
	slice []float32
}

func (v *nullVector) Scan(src any) error {
	if src == nil {
		v.slice = nil
		return nil
	}
	var vec pgvector.Vector
	if err := vec.Scan(src); err != nil {
		return err
	}
	v.slice = vec.Slice()
	return nil
}
