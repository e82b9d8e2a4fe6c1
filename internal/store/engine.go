package store

import "context"

// Row is a record as the engines see it: an encoded primary key, the encoded
// value of every index the record participates in, and the JSON body.
type Row struct {
	PK    string
	Index map[string]string
	Body  []byte
}

// ScanQuery selects rows of one collection, optionally restricted to an
// exact index value. Rows come back ordered by primary key. A zero Limit
// means no limit.
type ScanQuery struct {
	Index  string
	Value  string
	Offset int
	Limit  int
}

// Catalog describes what an engine has created so far.
type Catalog struct {
	Version     int64
	Collections map[string][]string // collection -> index names
}

// Upgrade describes one schema version bump.
type Upgrade struct {
	Version          int64
	Spec             CollectionSpec
	CreateCollection bool
	MissingIndexes   []IndexSpec
	// Backfill recomputes index values for a stored body.
	Backfill func(body []byte) (map[string]string, error)
}

// Engine is a storage backend for the document store.
type Engine interface {
	Name() string
	Catalog(ctx context.Context) (Catalog, error)
	// Upgrade applies u atomically: either the collection and all missing
	// indexes exist at u.Version afterwards, or nothing changed.
	Upgrade(ctx context.Context, u Upgrade) error
	Put(ctx context.Context, spec CollectionSpec, row Row) error
	// Get returns nil, nil when pk is absent.
	Get(ctx context.Context, spec CollectionSpec, pk string) ([]byte, error)
	Scan(ctx context.Context, spec CollectionSpec, q ScanQuery) ([][]byte, error)
	Count(ctx context.Context, spec CollectionSpec, index, value string) (int, error)
	Delete(ctx context.Context, spec CollectionSpec, pk string) error
	DeleteByIndex(ctx context.Context, spec CollectionSpec, index, value string) (int, error)
	Close() error
}
