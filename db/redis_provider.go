package db

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/mezonai/circlepay/logx"
	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis backend
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// RedisProvider implements IterableProvider for Redis. Batches are sent as
// MULTI/EXEC transactions so a ledger commit is applied all-or-nothing.
type RedisProvider struct {
	client *redis.Client
	ctx    context.Context
}

// idPrefixes are key prefixes followed by an 8-byte big-endian id
var idPrefixes = []string{"tx:", "circle:", "member:"}

// convertKeyToHumanReadable renders binary ids as decimal so keys stay
// inspectable with redis-cli, e.g. "circle:<8 bytes>" -> "circle:12" and
// "member:<8 bytes>alice" -> "member:12:alice".
func convertKeyToHumanReadable(key []byte) string {
	keyStr := string(key)

	for _, prefix := range idPrefixes {
		if !strings.HasPrefix(keyStr, prefix) || len(key) < len(prefix)+8 {
			continue
		}
		id := binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8])
		rest := key[len(prefix)+8:]
		if prefix == "member:" {
			return fmt.Sprintf("member:%d:%s", id, rest)
		}
		if len(rest) == 0 {
			return fmt.Sprintf("%s%d", prefix, id)
		}
	}

	// For non-id keys or invalid format, return as string
	return keyStr
}

// NewRedisProvider connects to Redis and verifies the connection
func NewRedisProvider(opts RedisOptions) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx := context.Background()

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisProvider{
		client: client,
		ctx:    ctx,
	}, nil
}

// Get retrieves a value by key
func (p *RedisProvider) Get(key []byte) ([]byte, error) {
	value, err := p.client.Get(p.ctx, convertKeyToHumanReadable(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Return nil for not found, consistent with interface
		}
		return nil, err
	}
	return value, nil
}

// GetBatch retrieves multiple values with a single MGET
func (p *RedisProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = convertKeyToHumanReadable(key)
	}
	values, err := p.client.MGet(p.ctx, redisKeys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		result[string(keys[i])] = []byte(s)
	}
	return result, nil
}

// Put stores a key-value pair
func (p *RedisProvider) Put(key, value []byte) error {
	redisKey := convertKeyToHumanReadable(key)
	logx.Debug("REDIS", "Put key:", redisKey, " value length:", len(value))
	return p.client.Set(p.ctx, redisKey, value, 0).Err()
}

// Delete removes a key-value pair
func (p *RedisProvider) Delete(key []byte) error {
	return p.client.Del(p.ctx, convertKeyToHumanReadable(key)).Err()
}

// Has checks if a key exists
func (p *RedisProvider) Has(key []byte) (bool, error) {
	count, err := p.client.Exists(p.ctx, convertKeyToHumanReadable(key)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the database connection
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

// Batch returns a new MULTI/EXEC batch
func (p *RedisProvider) Batch() DatabaseBatch {
	return &RedisBatch{
		client: p.client,
		ctx:    p.ctx,
	}
}

// IteratePrefix implements IterableProvider for Redis using SCAN. Keys are
// passed to fn in their human-readable form and in no particular order.
func (p *RedisProvider) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	pattern := convertKeyToHumanReadable(prefix) + "*"
	var cursor uint64
	for {
		keys, newCursor, err := p.client.Scan(p.ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return err
		}
		cursor = newCursor
		for _, k := range keys {
			val, err := p.client.Get(p.ctx, k).Bytes()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				return err
			}
			if !fn([]byte(k), val) {
				return nil
			}
		}
		if cursor == 0 {
			break
		}
	}
	return nil
}

// RedisBatch implements DatabaseBatch for Redis. Writes are buffered and sent
// as one MULTI/EXEC on Write; guarded keys are WATCHed first so a concurrent
// writer aborts the EXEC.
type RedisBatch struct {
	client *redis.Client
	ctx    context.Context
	ops    []batchOp
	guards []batchGuard
}

// Put adds a key-value pair to the batch
func (b *RedisBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: key, value: value})
}

// Delete adds a deletion to the batch
func (b *RedisBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: key, delete: true})
}

// Guard adds a key to WATCH and compare before the transaction runs
func (b *RedisBatch) Guard(key, expected []byte) {
	b.guards = append(b.guards, batchGuard{key: key, expected: expected})
}

// Write commits all operations in the batch
func (b *RedisBatch) Write() error {
	if len(b.ops) == 0 && len(b.guards) == 0 {
		return nil
	}
	if len(b.guards) == 0 {
		_, err := b.client.TxPipelined(b.ctx, b.queue)
		return err
	}

	watched := make([]string, len(b.guards))
	for i, g := range b.guards {
		watched[i] = convertKeyToHumanReadable(g.key)
	}
	err := b.client.Watch(b.ctx, func(tx *redis.Tx) error {
		err := checkGuards(b.guards, func(key []byte) ([]byte, error) {
			value, err := tx.Get(b.ctx, convertKeyToHumanReadable(key)).Bytes()
			if err == redis.Nil {
				return nil, nil
			}
			return value, err
		})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(b.ctx, b.queue)
		return err
	}, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrWriteConflict
	}
	return err
}

func (b *RedisBatch) queue(pipe redis.Pipeliner) error {
	for _, op := range b.ops {
		key := convertKeyToHumanReadable(op.key)
		if op.delete {
			pipe.Del(b.ctx, key)
		} else {
			pipe.Set(b.ctx, key, op.value, 0)
		}
	}
	return nil
}

// Reset clears the batch
func (b *RedisBatch) Reset() {
	b.ops = b.ops[:0]
	b.guards = nil
}

// Close releases batch resources
func (b *RedisBatch) Close() error {
	b.ops = nil
	b.guards = nil
	return nil
}
