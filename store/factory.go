package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mezonai/circlepay/db"
)

// StoreType represents the type of store implementation
type StoreType string

const (
	// LevelDBStoreType uses the LevelDB implementation
	LevelDBStoreType StoreType = "leveldb"

	// MemoryStoreType uses LevelDB over in-memory storage; nothing survives a restart
	MemoryStoreType StoreType = "memory"

	// BoltStoreType uses a single bbolt file
	BoltStoreType StoreType = "bolt"

	// RedisStoreType uses the Redis implementation
	RedisStoreType StoreType = "redis"

	// PostgresStoreType uses a Postgres key-value table
	PostgresStoreType StoreType = "postgres"

	// RocksDBStoreType uses the RocksDB implementation (requires -tags rocksdb)
	RocksDBStoreType StoreType = "rocksdb"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	// Type specifies which store implementation to use
	Type StoreType `json:"type" yaml:"type" ini:"type"`

	// Directory is the database directory path (for file-based databases)
	Directory string `json:"directory" yaml:"directory" ini:"directory"`

	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" ini:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" ini:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" ini:"redis_db"`

	PostgresDSN string `json:"postgres_dsn" yaml:"postgres_dsn" ini:"postgres_dsn"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	if sc.Type == "" {
		return fmt.Errorf("store type cannot be empty")
	}

	switch sc.Type {
	case LevelDBStoreType, BoltStoreType, RocksDBStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty")
		}
	case RedisStoreType:
		if sc.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	case PostgresStoreType:
		if sc.PostgresDSN == "" {
			return fmt.Errorf("postgres dsn cannot be empty")
		}
	case MemoryStoreType:
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
	return nil
}

// Stores groups the typed stores sharing one provider
type Stores struct {
	Provider db.DatabaseProvider
	Accounts AccountStore
	Circles  CircleStore
	Txs      TxStore
	Meta     StateMetaStore
}

// Close closes the shared provider once
func (s *Stores) Close() error {
	return s.Provider.Close()
}

// StoreFactory take responsibility to create store instances
type StoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateStoreWithProvider creates store instances using the provider pattern
func (sf *StoreFactory) CreateStoreWithProvider(config *StoreConfig) (*Stores, error) {
	provider, err := sf.CreateProvider(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	stores, err := NewStores(provider)
	if err != nil {
		provider.Close()
		return nil, err
	}
	return stores, nil
}

// NewStores wires every typed store to provider
func NewStores(provider db.DatabaseProvider) (*Stores, error) {
	accStore, err := NewGenericAccountStore(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create account store: %w", err)
	}

	circleStore, err := NewGenericCircleStore(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create circle store: %w", err)
	}

	txStore, err := NewGenericTxStore(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction store: %w", err)
	}

	metaStore, err := NewGenericStateMetaStore(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create state meta store: %w", err)
	}

	return &Stores{
		Provider: provider,
		Accounts: accStore,
		Circles:  circleStore,
		Txs:      txStore,
		Meta:     metaStore,
	}, nil
}

// CreateProvider creates a database provider based on the configuration
func (sf *StoreFactory) CreateProvider(config *StoreConfig) (db.DatabaseProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)

	case MemoryStoreType:
		return db.NewMemLevelDBProvider()

	case BoltStoreType:
		if err := os.MkdirAll(config.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bolt directory: %w", err)
		}
		return db.NewBoltProvider(filepath.Join(config.Directory, "ledger.bolt"))

	case RedisStoreType:
		return db.NewRedisProvider(db.RedisOptions{
			Address:  config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})

	case PostgresStoreType:
		return db.NewPostgresProvider(config.PostgresDSN)

	case RocksDBStoreType:
		return db.NewRocksDBProvider(config.Directory)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// Global factory instance
var globalFactory = NewStoreFactory()

// CreateStore creates new store instances using the global factory
func CreateStore(config *StoreConfig) (*Stores, error) {
	return globalFactory.CreateStoreWithProvider(config)
}
