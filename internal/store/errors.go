package store

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned by Update when the key does not exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnknownCollection is returned for names absent from the schema.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrUnknownIndex is returned for index names a collection does not declare.
	ErrUnknownIndex = errors.New("unknown index")
	// ErrVersionConflict is returned by Engine.Upgrade when another opener
	// bumped the store version first. The caller re-reads the catalog.
	ErrVersionConflict = errors.New("store version conflict")
)

// SchemaUpgradeError reports a failed collection upgrade. Once raised, every
// later operation on the collection fails with the same error.
type SchemaUpgradeError struct {
	Collection string
	Version    int64
	Err        error
}

func (e *SchemaUpgradeError) Error() string {
	return fmt.Sprintf("schema upgrade to version %d for collection %s failed: %v", e.Version, e.Collection, e.Err)
}

func (e *SchemaUpgradeError) Unwrap() error { return e.Err }
