package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mezonai/circlepay/logx"
)

const createKVTableSQL = `
CREATE TABLE IF NOT EXISTS ledger_kv (
	k BYTEA PRIMARY KEY,
	v BYTEA NOT NULL
);`

const upsertKVSQL = `INSERT INTO ledger_kv (k, v) VALUES ($1, $2)
ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`

const lockKVSQL = `SELECT v FROM ledger_kv WHERE k = $1 FOR UPDATE`

// SQLSTATEs that mean a concurrent writer won the race
const (
	pqSerializationFailure pq.ErrorCode = "40001"
	pqUniqueViolation      pq.ErrorCode = "23505"
)

// PostgresProvider stores the key space in a single two-column table. A batch
// is one SQL transaction.
type PostgresProvider struct {
	once sync.Once
	db   *sql.DB
}

// NewPostgresProvider connects with retry and ensures the kv table exists
func NewPostgresProvider(dsn string) (*PostgresProvider, error) {
	const maxRetries = 5
	const retryDelay = time.Second * 2

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			logx.Warn("POSTGRES", fmt.Sprintf("Retrying database connection (attempt %d/%d) after error: %v", attempt+1, maxRetries, lastErr))
			time.Sleep(retryDelay)
		}

		conn, err := sql.Open("postgres", dsn)
		if err != nil {
			lastErr = fmt.Errorf("failed to open database connection: %w", err)
			continue
		}
		if err := conn.Ping(); err != nil {
			conn.Close()
			lastErr = fmt.Errorf("failed to ping database: %w", err)
			continue
		}
		if _, err := conn.Exec(createKVTableSQL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create ledger_kv table: %w", err)
		}
		return &PostgresProvider{db: conn}, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, lastErr)
}

// Get retrieves a value by key
func (p *PostgresProvider) Get(key []byte) ([]byte, error) {
	var v []byte
	err := p.db.QueryRow(`SELECT v FROM ledger_kv WHERE k = $1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetBatch retrieves multiple values; each key is one indexed lookup
func (p *PostgresProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		v, err := p.Get(key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			result[string(key)] = v
		}
	}
	return result, nil
}

// Put stores a key-value pair
func (p *PostgresProvider) Put(key, value []byte) error {
	_, err := p.db.Exec(upsertKVSQL, key, value)
	return err
}

// Delete removes a key-value pair
func (p *PostgresProvider) Delete(key []byte) error {
	_, err := p.db.Exec(`DELETE FROM ledger_kv WHERE k = $1`, key)
	return err
}

// Has checks if a key exists
func (p *PostgresProvider) Has(key []byte) (bool, error) {
	var exists bool
	err := p.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM ledger_kv WHERE k = $1)`, key).Scan(&exists)
	return exists, err
}

// Close closes the connection pool
func (p *PostgresProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

// Batch returns a buffered batch applied in one SQL transaction on Write
func (p *PostgresProvider) Batch() DatabaseBatch {
	return &PostgresBatch{db: p.db}
}

// IteratePrefix scans keys with prefix in byte order (bytea compares bytewise)
func (p *PostgresProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	rows, err := p.db.Query(`SELECT k, v FROM ledger_kv WHERE substring(k from 1 for $2) = $1 ORDER BY k`, prefix, len(prefix))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if !callback(k, v) {
			break
		}
	}
	return rows.Err()
}

// PostgresBatch implements DatabaseBatch for Postgres
type PostgresBatch struct {
	db     *sql.DB
	ops    []batchOp
	guards []batchGuard
}

// Put adds a key-value pair to the batch
func (b *PostgresBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

// Delete adds a deletion to the batch
func (b *PostgresBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

// Guard adds a row that is locked and compared before the writes run
func (b *PostgresBatch) Guard(key, expected []byte) {
	b.guards = append(b.guards, batchGuard{key: key, expected: expected})
}

// Write commits all operations in the batch. Guarded rows are read with
// SELECT ... FOR UPDATE under SERIALIZABLE isolation, so two writers racing
// on the same guard cannot both commit.
func (b *PostgresBatch) Write() error {
	if len(b.ops) == 0 && len(b.guards) == 0 {
		return nil
	}
	ctx := context.Background()
	opts := &sql.TxOptions{}
	if len(b.guards) > 0 {
		opts.Isolation = sql.LevelSerializable
	}
	tx, err := b.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	err = checkGuards(b.guards, func(key []byte) ([]byte, error) {
		var v []byte
		err := tx.QueryRowContext(ctx, lockKVSQL, key).Scan(&v)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		tx.Rollback()
		return mapPostgresConflict(err)
	}

	for _, op := range b.ops {
		if op.delete {
			_, err = tx.ExecContext(ctx, `DELETE FROM ledger_kv WHERE k = $1`, op.key)
		} else {
			_, err = tx.ExecContext(ctx, upsertKVSQL, op.key, op.value)
		}
		if err != nil {
			tx.Rollback()
			return mapPostgresConflict(err)
		}
	}
	return mapPostgresConflict(tx.Commit())
}

// mapPostgresConflict turns serialization failures into ErrWriteConflict
func mapPostgresConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == pqSerializationFailure || pqErr.Code == pqUniqueViolation) {
		return ErrWriteConflict
	}
	return err
}

// Reset clears the batch
func (b *PostgresBatch) Reset() {
	b.ops = b.ops[:0]
	b.guards = nil
}

// Close releases batch resources
func (b *PostgresBatch) Close() error {
	b.ops = nil
	b.guards = nil
	return nil
}
