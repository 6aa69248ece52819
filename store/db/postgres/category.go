package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github.com/notesense/notesense/store"
)

// ListCategories returns the reference category set. Callers read a fresh
// snapshot per enrichment run; nothing is cached here.
func (d *DB) ListCategories(ctx context.Context) ([]*store.Category, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name FROM category ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	defer rows.Close()

	list := []*store.Category{}
	for rows.Next() {
		var category store.Category
		if err := rows.Scan(&category.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan category")
		}
		list = append(list, &category)
	}
	return list, rows.Err()
}
