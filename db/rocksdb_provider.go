//go:build rocksdb
// +build rocksdb

package db

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/linxGnu/grocksdb"
)

// RocksDBProvider implements IterableProvider over an embedded RocksDB. Like
// LevelDB it is single-process, so an in-process mutex is enough to make
// guarded batches serializable.
type RocksDBProvider struct {
	closeOnce sync.Once
	writeMu   sync.Mutex

	rdb       *grocksdb.DB
	readOpts  *grocksdb.ReadOptions
	writeOpts *grocksdb.WriteOptions
}

// NewRocksDBProvider opens (or creates) a RocksDB database in directory
func NewRocksDBProvider(directory string) (DatabaseProvider, error) {
	opts := grocksdb.NewDefaultOptions()
	defer opts.Destroy()
	opts.SetCreateIfMissing(true)

	rdb, err := grocksdb.OpenDb(opts, directory)
	if err != nil {
		return nil, fmt.Errorf("failed to open RocksDB at %s: %w", directory, err)
	}

	writeOpts := grocksdb.NewDefaultWriteOptions()
	// a committed ledger operation has to survive a crash
	writeOpts.SetSync(true)

	return &RocksDBProvider{
		rdb:       rdb,
		readOpts:  grocksdb.NewDefaultReadOptions(),
		writeOpts: writeOpts,
	}, nil
}

// copySlice copies a RocksDB slice into Go memory and frees it.
// A missing key yields nil.
func copySlice(s *grocksdb.Slice) []byte {
	defer s.Free()
	if !s.Exists() {
		return nil
	}
	return append([]byte(nil), s.Data()...)
}

func (p *RocksDBProvider) Get(key []byte) ([]byte, error) {
	s, err := p.rdb.Get(p.readOpts, key)
	if err != nil {
		return nil, err
	}
	return copySlice(s), nil
}

// GetBatch reads every key with a single MultiGet
func (p *RocksDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	slices, err := p.rdb.MultiGet(p.readOpts, keys...)
	if err != nil {
		return nil, err
	}
	for i, s := range slices {
		if v := copySlice(s); v != nil {
			result[string(keys[i])] = v
		}
	}
	return result, nil
}

func (p *RocksDBProvider) Put(key, value []byte) error {
	return p.rdb.Put(p.writeOpts, key, value)
}

func (p *RocksDBProvider) Delete(key []byte) error {
	return p.rdb.Delete(p.writeOpts, key)
}

func (p *RocksDBProvider) Has(key []byte) (bool, error) {
	v, err := p.Get(key)
	return v != nil, err
}

// Close releases the options and the database; safe to call more than once
func (p *RocksDBProvider) Close() error {
	p.closeOnce.Do(func() {
		p.readOpts.Destroy()
		p.writeOpts.Destroy()
		p.rdb.Close()
	})
	return nil
}

// Batch returns a buffered batch turned into one WriteBatch on Write
func (p *RocksDBProvider) Batch() DatabaseBatch {
	return &RocksDBBatch{provider: p}
}

// IteratePrefix walks keys with prefix in byte order
func (p *RocksDBProvider) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	it := p.rdb.NewIterator(p.readOpts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := copySlice(it.Key())
		value := copySlice(it.Value())
		if !bytes.HasPrefix(key, prefix) || !fn(key, value) {
			break
		}
	}
	return it.Err()
}

// RocksDBBatch implements DatabaseBatch for RocksDB
type RocksDBBatch struct {
	provider *RocksDBProvider
	ops      []batchOp
	guards   []batchGuard
}

func (b *RocksDBBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

func (b *RocksDBBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

func (b *RocksDBBatch) Guard(key, expected []byte) {
	b.guards = append(b.guards, batchGuard{key: key, expected: expected})
}

// Write checks the guards and applies the buffered ops as one WriteBatch
func (b *RocksDBBatch) Write() error {
	p := b.provider
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := checkGuards(b.guards, p.Get); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}

	wb := grocksdb.NewWriteBatch()
	defer wb.Destroy()
	for _, op := range b.ops {
		if op.delete {
			wb.Delete(op.key)
		} else {
			wb.Put(op.key, op.value)
		}
	}
	return p.rdb.Write(p.writeOpts, wb)
}

func (b *RocksDBBatch) Reset() {
	b.ops = b.ops[:0]
	b.guards = nil
}

func (b *RocksDBBatch) Close() error {
	b.ops = nil
	b.guards = nil
	return nil
}
