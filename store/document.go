package store

import "encoding/json"

// CollectionCategories is the reference collection holding category names.
const CollectionCategories = "categories"

// FallbackCategory is assigned when a document fits no known category.
const FallbackCategory = "random"

// Document is a free-text document stored in a collection.
// Category and Embedding are owned by the enrichment worker; after a
// successful enrichment both are present, otherwise both are absent.
// Fields carries arbitrary extra fields that enrichment never touches.
type Document struct {
	Collection string
	ID         string
	Content    string
	Category   *string
	Embedding  []float32
	Fields     map[string]any
	CreatedTs  int64
	UpdatedTs  int64
}

// FindDocument locates a single document by (collection, id).
type FindDocument struct {
	Collection string
	ID         string
}

// UpdateDocument is a field-level update: only category and embedding are
// written, all other fields are preserved. The embedding is always replaced
// wholesale, never merged.
type UpdateDocument struct {
	Collection string
	ID         string
	Category   *string
	Embedding  []float32
}

// SearchDocuments is a vector similarity query against one collection.
type SearchDocuments struct {
	Collection  string
	Vector      []float32
	Limit       int
	MaxDistance float32
}

// SearchResult pairs a matched document with its cosine distance.
type SearchResult struct {
	Document *Document
	Distance float32
}

// Category is one entry of the reference category set.
type Category struct {
	Name string
}

// MarshalFields encodes the extra-field map for storage. A nil map encodes
// as an empty JSON object so round-trips stay stable.
func MarshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	return json.Marshal(fields)
}

// UnmarshalFields decodes the extra-field column.
func UnmarshalFields(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
