package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/robfig/cron/v3"
)

// Key layout, NUL separated. Encoded keys are JSON and never contain a raw
// NUL, so prefixes cannot collide.
//
//	d <coll> <pk>                  -> envelope{index values, body}
//	x <coll> <index> <value> <pk>  -> empty
//	m version                      -> decimal store version
//	m c <coll> <index>             -> key path ("" index is the collection)
const sep = "\x00"

func docPrefix(coll string) []byte { return []byte("d" + sep + coll + sep) }

func docKey(coll, pk string) []byte { return append(docPrefix(coll), pk...) }

func indexPrefix(coll, index, value string) []byte {
	return []byte("x" + sep + coll + sep + index + sep + value + sep)
}

func indexKey(coll, index, value, pk string) []byte {
	return append(indexPrefix(coll, index, value), pk...)
}

var (
	metaVersionKey = []byte("m" + sep + "version")
	metaCatalogPfx = []byte("m" + sep + "c" + sep)
)

func catalogKey(coll, index string) []byte {
	return append(append([]byte{}, metaCatalogPfx...), coll+sep+index...)
}

type envelope struct {
	Index map[string]string `json:"i,omitempty"`
	Body  json.RawMessage   `json:"b"`
}

// BadgerConfig configures the embedded key-value engine.
type BadgerConfig struct {
	Dir      string
	InMemory bool
	// GCSchedule is a cron spec for value-log GC; empty disables it.
	GCSchedule string
	GCRatio    float64
	Logger     *slog.Logger
}

// BadgerEngine stores collections in an embedded badger database.
type BadgerEngine struct {
	db   *badger.DB
	cron *cron.Cron
	log  *slog.Logger
}

// badgerLogger routes badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens (or creates) the badger database described by cfg.
func OpenBadger(cfg BadgerConfig) (*BadgerEngine, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger directory is required unless running in memory")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger.With("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	e := &BadgerEngine{db: db, log: logger}

	if cfg.GCSchedule != "" && !cfg.InMemory {
		ratio := cfg.GCRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		e.cron = cron.New()
		if _, err := e.cron.AddFunc(cfg.GCSchedule, func() { e.runGC(ratio) }); err != nil {
			db.Close()
			return nil, fmt.Errorf("invalid badger GC schedule %q: %w", cfg.GCSchedule, err)
		}
		e.cron.Start()
	}
	return e, nil
}

// runGC rewrites value-log files until badger reports nothing left to do.
func (e *BadgerEngine) runGC(ratio float64) {
	for {
		err := e.db.RunValueLogGC(ratio)
		if err == nil {
			e.log.Debug("Badger value log GC rewrote a file")
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			e.log.Warn("Badger value log GC failed", "error", err)
		}
		return
	}
}

func (e *BadgerEngine) Name() string { return "badger" }

func (e *BadgerEngine) Close() error {
	if e.cron != nil {
		<-e.cron.Stop().Done()
	}
	return e.db.Close()
}

func readBadgerVersion(txn *badger.Txn) (int64, error) {
	item, err := txn.Get(metaVersionKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v int64
	err = item.Value(func(val []byte) error {
		v, err = strconv.ParseInt(string(val), 10, 64)
		return err
	})
	return v, err
}

func (e *BadgerEngine) Catalog(ctx context.Context) (Catalog, error) {
	cat := Catalog{Collections: make(map[string][]string)}
	err := e.db.View(func(txn *badger.Txn) error {
		v, err := readBadgerVersion(txn)
		if err != nil {
			return err
		}
		cat.Version = v
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = metaCatalogPfx
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), metaCatalogPfx)
			coll, index, ok := bytes.Cut(rest, []byte(sep))
			if !ok {
				continue
			}
			name := string(coll)
			if len(index) == 0 {
				if _, seen := cat.Collections[name]; !seen {
					cat.Collections[name] = nil
				}
				continue
			}
			cat.Collections[name] = append(cat.Collections[name], string(index))
		}
		return ctx.Err()
	})
	return cat, err
}

func (e *BadgerEngine) Upgrade(ctx context.Context, u Upgrade) error {
	err := e.db.Update(func(txn *badger.Txn) error {
		current, err := readBadgerVersion(txn)
		if err != nil {
			return err
		}
		if current >= u.Version {
			return fmt.Errorf("%w: version moved from %d to %d during upgrade", ErrVersionConflict, u.Version-1, current)
		}
		if u.CreateCollection {
			if err := txn.Set(catalogKey(u.Spec.Name, ""), []byte(u.Spec.KeyPath.String())); err != nil {
				return err
			}
		}
		for _, ix := range u.MissingIndexes {
			if err := txn.Set(catalogKey(u.Spec.Name, ix.Name), []byte(ix.KeyPath.String())); err != nil {
				return err
			}
		}
		if len(u.MissingIndexes) > 0 {
			if err := backfillBadger(ctx, txn, u); err != nil {
				return err
			}
		}
		return txn.Set(metaVersionKey, []byte(strconv.FormatInt(u.Version, 10)))
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	return err
}

func backfillBadger(ctx context.Context, txn *badger.Txn, u Upgrade) error {
	prefix := docPrefix(u.Spec.Name)
	type update struct {
		pk  string
		env envelope
	}
	var updates []update

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			it.Close()
			return err
		}
		pk := string(it.Item().Key()[len(prefix):])
		var env envelope
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &env) }); err != nil {
			it.Close()
			return fmt.Errorf("reading %s %s: %w", u.Spec.Name, pk, err)
		}
		values, err := u.Backfill(env.Body)
		if err != nil {
			it.Close()
			return fmt.Errorf("backfilling %s %s: %w", u.Spec.Name, pk, err)
		}
		if env.Index == nil {
			env.Index = make(map[string]string)
		}
		for _, ix := range u.MissingIndexes {
			if v, ok := values[ix.Name]; ok {
				env.Index[ix.Name] = v
			}
		}
		updates = append(updates, update{pk: pk, env: env})
	}
	it.Close()

	for _, up := range updates {
		data, err := json.Marshal(up.env)
		if err != nil {
			return err
		}
		if err := txn.Set(docKey(u.Spec.Name, up.pk), data); err != nil {
			return err
		}
		for _, ix := range u.MissingIndexes {
			if v, ok := up.env.Index[ix.Name]; ok {
				if err := txn.Set(indexKey(u.Spec.Name, ix.Name, v, up.pk), nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func getEnvelope(txn *badger.Txn, key []byte) (*envelope, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &env) }); err != nil {
		return nil, err
	}
	return &env, nil
}

func removeDoc(txn *badger.Txn, coll, pk string, env *envelope) error {
	for index, value := range env.Index {
		if err := txn.Delete(indexKey(coll, index, value, pk)); err != nil {
			return err
		}
	}
	return txn.Delete(docKey(coll, pk))
}

func (e *BadgerEngine) Put(ctx context.Context, spec CollectionSpec, row Row) error {
	data, err := json.Marshal(envelope{Index: row.Index, Body: row.Body})
	if err != nil {
		return err
	}
	return e.db.Update(func(txn *badger.Txn) error {
		key := docKey(spec.Name, row.PK)
		old, err := getEnvelope(txn, key)
		if err != nil {
			return err
		}
		if old != nil {
			for index, value := range old.Index {
				if row.Index[index] == value {
					continue
				}
				if err := txn.Delete(indexKey(spec.Name, index, value, row.PK)); err != nil {
					return err
				}
			}
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		for index, value := range row.Index {
			if err := txn.Set(indexKey(spec.Name, index, value, row.PK), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *BadgerEngine) Get(ctx context.Context, spec CollectionSpec, pk string) ([]byte, error) {
	var body []byte
	err := e.db.View(func(txn *badger.Txn) error {
		env, err := getEnvelope(txn, docKey(spec.Name, pk))
		if err != nil || env == nil {
			return err
		}
		body = env.Body
		return nil
	})
	return body, err
}

// scanKeys walks matching primary keys in order without loading values.
func scanKeys(ctx context.Context, txn *badger.Txn, coll, index, value string, fn func(pk string) (bool, error)) error {
	prefix := docPrefix(coll)
	if index != "" {
		prefix = indexPrefix(coll, index, value)
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := fn(string(it.Item().Key()[len(prefix):]))
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (e *BadgerEngine) Scan(ctx context.Context, spec CollectionSpec, q ScanQuery) ([][]byte, error) {
	var out [][]byte
	err := e.db.View(func(txn *badger.Txn) error {
		skipped := 0
		return scanKeys(ctx, txn, spec.Name, q.Index, q.Value, func(pk string) (bool, error) {
			if skipped < q.Offset {
				skipped++
				return true, nil
			}
			env, err := getEnvelope(txn, docKey(spec.Name, pk))
			if err != nil {
				return false, err
			}
			if env != nil {
				out = append(out, env.Body)
			}
			return q.Limit == 0 || len(out) < q.Limit, nil
		})
	})
	return out, err
}

func (e *BadgerEngine) Count(ctx context.Context, spec CollectionSpec, index, value string) (int, error) {
	n := 0
	err := e.db.View(func(txn *badger.Txn) error {
		return scanKeys(ctx, txn, spec.Name, index, value, func(string) (bool, error) {
			n++
			return true, nil
		})
	})
	return n, err
}

func (e *BadgerEngine) Delete(ctx context.Context, spec CollectionSpec, pk string) error {
	return e.db.Update(func(txn *badger.Txn) error {
		env, err := getEnvelope(txn, docKey(spec.Name, pk))
		if err != nil || env == nil {
			return err
		}
		return removeDoc(txn, spec.Name, pk, env)
	})
}

func (e *BadgerEngine) DeleteByIndex(ctx context.Context, spec CollectionSpec, index, value string) (int, error) {
	var pks []string
	err := e.db.View(func(txn *badger.Txn) error {
		return scanKeys(ctx, txn, spec.Name, index, value, func(pk string) (bool, error) {
			pks = append(pks, pk)
			return true, nil
		})
	})
	if err != nil {
		return 0, err
	}

	// Large cascades would exceed one transaction; commit in batches.
	deleted := 0
	for start := 0; start < len(pks); start += deleteBatch {
		end := min(start+deleteBatch, len(pks))
		n := 0
		err := e.db.Update(func(txn *badger.Txn) error {
			for _, pk := range pks[start:end] {
				env, err := getEnvelope(txn, docKey(spec.Name, pk))
				if err != nil {
					return err
				}
				if env == nil {
					continue
				}
				if err := removeDoc(txn, spec.Name, pk, env); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

const deleteBatch = 256
