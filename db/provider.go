package db

import (
	"bytes"
	"errors"
)

// ErrIterationUnsupported is returned by helpers that need prefix iteration
// when the configured backend cannot provide it
var ErrIterationUnsupported = errors.New("provider does not support prefix iteration")

// ErrWriteConflict is returned by DatabaseBatch.Write when a guarded key no
// longer holds the value the batch was built against
var ErrWriteConflict = errors.New("guarded key changed before batch write")

// DatabaseProvider abstracts the low-level key-value operations the ledger stores
// are written against, so every backend (LevelDB, Bolt, Redis, Postgres, RocksDB)
// can be swapped without touching ledger code. Get returns nil, nil for a
// missing key.
type DatabaseProvider interface {
	// Get retrieves a value by key
	Get(key []byte) ([]byte, error)

	// GetBatch retrieves multiple values by keys in a single operation.
	// Missing keys are absent from the result.
	GetBatch(keys [][]byte) (map[string][]byte, error)

	// Put stores a key-value pair
	Put(key, value []byte) error

	// Delete removes a key-value pair
	Delete(key []byte) error

	// Has checks if a key exists
	Has(key []byte) (bool, error)

	// Close closes the database connection
	Close() error

	// Batch returns a new batch for atomic operations
	Batch() DatabaseBatch
}

// IterableProvider extends DatabaseProvider with iteration capabilities
type IterableProvider interface {
	DatabaseProvider

	// IteratePrefix iterates over all key-value pairs with the given prefix
	// in ascending key order where the backend supports ordering.
	// The callback function should return false to stop iteration
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error
}

// DatabaseBatch provides atomic batch operations. Nothing is visible to readers
// until Write returns nil, and a failed Write leaves the store untouched.
type DatabaseBatch interface {
	// Put adds a key-value pair to the batch
	Put(key, value []byte)

	// Delete adds a deletion to the batch
	Delete(key []byte)

	// Guard makes Write conditional on key still holding expected at write
	// time. A nil expected means the key must be absent. Write returns
	// ErrWriteConflict and applies nothing when any guard fails.
	Guard(key, expected []byte)

	// Write commits all operations in the batch
	Write() error

	// Reset clears the batch
	Reset()

	// Close releases batch resources
	Close() error
}

// IteratePrefix runs callback over provider when it supports iteration
func IteratePrefix(provider DatabaseProvider, prefix []byte, callback func(key, value []byte) bool) error {
	it, ok := provider.(IterableProvider)
	if !ok {
		return ErrIterationUnsupported
	}
	return it.IteratePrefix(prefix, callback)
}

// batchOp is one buffered write of a batch that is replayed on Write
type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// batchGuard is one compare condition registered with Guard
type batchGuard struct {
	key      []byte
	expected []byte
}

// checkGuards reads every guarded key through get and reports ErrWriteConflict
// on the first mismatch. Callers must hold whatever lock makes the check and
// the following write atomic.
func checkGuards(guards []batchGuard, get func(key []byte) ([]byte, error)) error {
	for _, g := range guards {
		current, err := get(g.key)
		if err != nil {
			return err
		}
		if (current == nil) != (g.expected == nil) || !bytes.Equal(current, g.expected) {
			return ErrWriteConflict
		}
	}
	return nil
}
