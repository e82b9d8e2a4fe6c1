// Package store is a versioned document store with compound primary keys and
// secondary indexes. Collections are created lazily on first use.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Store is safe for concurrent use.
type Store struct {
	engine Engine
	schema Schema

	upgradeMu sync.Mutex
	ensured   map[string]bool
	broken    map[string]*SchemaUpgradeError

	// writeMu serializes writes so Update's read-modify-write is atomic.
	writeMu sync.Mutex
}

// New wraps engine with schema. A nil schema uses DefaultSchema.
func New(engine Engine, schema Schema) *Store {
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Store{
		engine:  engine,
		schema:  schema,
		ensured: make(map[string]bool),
		broken:  make(map[string]*SchemaUpgradeError),
	}
}

// Engine returns the backing engine name.
func (s *Store) Engine() string { return s.engine.Name() }

// Schema returns the collection specs the store was built with.
func (s *Store) Schema() Schema { return s.schema }

// Close releases the engine.
func (s *Store) Close() error { return s.engine.Close() }

// EnsureCollection creates name, or adds indexes it is missing, with a
// version-bump upgrade. It is idempotent and serialized across callers.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	_, err := s.ensure(ctx, name)
	return err
}

func (s *Store) ensure(ctx context.Context, name string) (CollectionSpec, error) {
	spec, ok := s.schema[name]
	if !ok {
		return CollectionSpec{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}

	s.upgradeMu.Lock()
	defer s.upgradeMu.Unlock()

	if err, ok := s.broken[name]; ok {
		return spec, err
	}
	if s.ensured[name] {
		return spec, nil
	}

	for attempt := 1; ; attempt++ {
		err := s.upgrade(ctx, spec)
		if err == nil {
			s.ensured[name] = true
			return spec, nil
		}
		var uerr *SchemaUpgradeError
		if errors.As(err, &uerr) && errors.Is(err, ErrVersionConflict) && attempt < maxUpgradeAttempts {
			slog.Debug("Schema version moved, retrying", "collection", name, "attempt", attempt)
			continue
		}
		if uerr != nil && !errors.Is(err, ErrVersionConflict) &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.broken[name] = uerr
		}
		return spec, err
	}
}

// maxUpgradeAttempts bounds retries after losing the version race to
// another opener of the same database.
const maxUpgradeAttempts = 5

// upgrade reads the catalog and applies the version bump spec still needs.
func (s *Store) upgrade(ctx context.Context, spec CollectionSpec) error {
	name := spec.Name
	cat, err := s.engine.Catalog(ctx)
	if err != nil {
		return fmt.Errorf("reading %s catalog: %w", s.engine.Name(), err)
	}
	existing, present := cat.Collections[name]
	have := make(map[string]bool, len(existing))
	for _, ix := range existing {
		have[ix] = true
	}
	var missing []IndexSpec
	for _, ix := range spec.Indexes {
		if !have[ix.Name] {
			missing = append(missing, ix)
		}
	}
	if present && len(missing) == 0 {
		return nil
	}

	u := Upgrade{
		Version:          cat.Version + 1,
		Spec:             spec,
		CreateCollection: !present,
		MissingIndexes:   missing,
		Backfill:         indexBackfill(spec),
	}
	if err := s.engine.Upgrade(ctx, u); err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			slog.Error("Schema upgrade failed", "collection", name, "version", u.Version, "error", err)
		}
		return &SchemaUpgradeError{Collection: name, Version: u.Version, Err: err}
	}
	slog.Debug("Schema upgraded", "collection", name, "version", u.Version,
		"created", u.CreateCollection, "indexes", len(missing), "engine", s.engine.Name())
	return nil
}

func (s *Store) indexValue(spec CollectionSpec, index string, value Key) (string, error) {
	if index == "" {
		return "", nil
	}
	if _, ok := spec.Index(index); !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownIndex, spec.Name, index)
	}
	return EncodeKey(value)
}

// Put inserts or replaces r by its primary key.
func (s *Store) Put(ctx context.Context, collection string, r Record) error {
	spec, err := s.ensure(ctx, collection)
	if err != nil {
		return err
	}
	row, err := encodeRecord(spec, r)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.engine.Put(ctx, spec, row); err != nil {
		return fmt.Errorf("put %s %s: %w", collection, row.PK, err)
	}
	return nil
}

// PutValue stores any JSON-serializable value.
func (s *Store) PutValue(ctx context.Context, collection string, v any) error {
	r, err := FromStruct(v)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", collection, err)
	}
	return s.Put(ctx, collection, r)
}

// PutAll stores every value, stopping at the first error.
func PutAll[T any](ctx context.Context, s *Store, collection string, values []T) error {
	for i := range values {
		if err := s.PutValue(ctx, collection, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the record stored under key, or nil when absent.
func (s *Store) Get(ctx context.Context, collection string, key Key) (Record, error) {
	spec, err := s.ensure(ctx, collection)
	if err != nil {
		return nil, err
	}
	pk, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.engine.Get(ctx, spec, pk)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", collection, pk, err)
	}
	if body == nil {
		return nil, nil
	}
	return decodeRecord(body)
}

// GetAllByIndex returns every record, or every record whose index equals
// value when index is set.
func (s *Store) GetAllByIndex(ctx context.Context, collection, index string, value Key) ([]Record, error) {
	return s.GetPage(ctx, collection, PageQuery{Index: index, Value: value})
}

// PageQuery selects a window of a collection. A zero Limit returns
// everything after Offset.
type PageQuery struct {
	Index  string
	Value  Key
	Offset int
	Limit  int
}

// GetPage skips Offset matching records without decoding them and returns
// up to Limit records ordered by primary key.
func (s *Store) GetPage(ctx context.Context, collection string, q PageQuery) ([]Record, error) {
	spec, err := s.ensure(ctx, collection)
	if err != nil {
		return nil, err
	}
	v, err := s.indexValue(spec, q.Index, q.Value)
	if err != nil {
		return nil, err
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	bodies, err := s.engine.Scan(ctx, spec, ScanQuery{Index: q.Index, Value: v, Offset: q.Offset, Limit: q.Limit})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	out := make([]Record, 0, len(bodies))
	for _, b := range bodies {
		r, err := decodeRecord(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", collection, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Count counts matching records without decoding them.
func (s *Store) Count(ctx context.Context, collection, index string, value Key) (int, error) {
	spec, err := s.ensure(ctx, collection)
	if err != nil {
		return 0, err
	}
	v, err := s.indexValue(spec, index, value)
	if err != nil {
		return 0, err
	}
	n, err := s.engine.Count(ctx, spec, index, v)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// Delete removes the record under key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, collection string, key Key) error {
	spec, err := s.ensure(ctx, collection)
	if err != nil {
		return err
	}
	pk, err := EncodeKey(key)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.engine.Delete(ctx, spec, pk); err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, pk, err)
	}
	return nil
}

// DeleteAllByIndex removes every record whose index equals value and
// returns how many were removed.
func (s *Store) DeleteAllByIndex(ctx context.Context, collection, index string, value Key) (int, error) {
	spec, err := s.ensure(ctx, collection)
	if err != nil {
		return 0, err
	}
	if index == "" {
		return 0, fmt.Errorf("%w: %s requires an index for bulk delete", ErrUnknownIndex, collection)
	}
	v, err := s.indexValue(spec, index, value)
	if err != nil {
		return 0, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.engine.DeleteByIndex(ctx, spec, index, v)
	if err != nil {
		return n, fmt.Errorf("delete %s by %s: %w", collection, index, err)
	}
	return n, nil
}

// Update reads the record under key, applies fn and stores the result.
// It fails with ErrRecordNotFound when the key is absent. The mutated
// record must keep its primary key.
func (s *Store) Update(ctx context.Context, collection string, key Key, fn func(Record) (Record, error)) (Record, error) {
	spec, err := s.ensure(ctx, collection)
	if err != nil {
		return nil, err
	}
	pk, err := EncodeKey(key)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	body, err := s.engine.Get(ctx, spec, pk)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", collection, pk, err)
	}
	if body == nil {
		return nil, fmt.Errorf("update %s %s: %w", collection, key, ErrRecordNotFound)
	}
	cur, err := decodeRecord(body)
	if err != nil {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	row, err := encodeRecord(spec, next)
	if err != nil {
		return nil, err
	}
	if row.PK != pk {
		return nil, fmt.Errorf("update %s %s: mutator changed the primary key to %s", collection, pk, row.PK)
	}
	if err := s.engine.Put(ctx, spec, row); err != nil {
		return nil, fmt.Errorf("put %s %s: %w", collection, pk, err)
	}
	return next, nil
}

// GetAs fetches key and decodes it into T. It returns nil when absent.
func GetAs[T any](ctx context.Context, s *Store, collection string, key Key) (*T, error) {
	r, err := s.Get(ctx, collection, key)
	if err != nil || r == nil {
		return nil, err
	}
	var v T
	if err := ToStruct(r, &v); err != nil {
		return nil, fmt.Errorf("decoding %s record: %w", collection, err)
	}
	return &v, nil
}

// DecodeAll converts records into T values.
func DecodeAll[T any](collection string, records []Record) ([]T, error) {
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := ToStruct(r, &v); err != nil {
			return nil, fmt.Errorf("decoding %s record: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// AllAs returns every record matching the index as T values.
func AllAs[T any](ctx context.Context, s *Store, collection, index string, value Key) ([]T, error) {
	recs, err := s.GetAllByIndex(ctx, collection, index, value)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](collection, recs)
}

// PageAs returns one page as T values.
func PageAs[T any](ctx context.Context, s *Store, collection string, q PageQuery) ([]T, error) {
	recs, err := s.GetPage(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](collection, recs)
}
