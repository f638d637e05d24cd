package store

import (
	"encoding/binary"
	"fmt"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/types"
)

// StateMetaStore keeps the global ledger parameters (owner, fee rate, id
// counters, height, state hash) as a single record so that every operation
// reads and commits them together with the entities it touches.
//
// The commit version counts committed operations. A writer reads it before
// anything else and stages a guarded bump, so a batch built from state some
// other writer has since changed is refused by the backend.
type StateMetaStore interface {
	Load() (*types.Params, error)
	StageInBatch(batch db.DatabaseBatch, params *types.Params) error
	Version() (uint64, error)
	StageVersionBump(batch db.DatabaseBatch, read uint64)
}

type GenericStateMetaStore struct {
	provider db.DatabaseProvider
}

func NewGenericStateMetaStore(provider db.DatabaseProvider) (*GenericStateMetaStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	return &GenericStateMetaStore{provider: provider}, nil
}

// DefaultParams is the state of a ledger that has never been written to
func DefaultParams() *types.Params {
	return &types.Params{
		FeeRateBps:   types.DefaultFeeRateBps,
		NextCircleID: 1,
		NextTxID:     1,
	}
}

// Load returns the stored parameters, or DefaultParams if none were committed yet
func (s *GenericStateMetaStore) Load() (*types.Params, error) {
	value, err := s.provider.Get([]byte(KeyLedgerMeta))
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger meta: %w", err)
	}
	if len(value) == 0 {
		return DefaultParams(), nil
	}
	var p types.Params
	if err := jsonx.Unmarshal(value, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger meta: %w", err)
	}
	return &p, nil
}

func (s *GenericStateMetaStore) StageInBatch(batch db.DatabaseBatch, params *types.Params) error {
	value, err := jsonx.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger meta: %w", err)
	}
	batch.Put([]byte(KeyLedgerMeta), value)
	return nil
}

// Version returns the commit version; 0 until the first commit
func (s *GenericStateMetaStore) Version() (uint64, error) {
	value, err := s.provider.Get([]byte(KeyLedgerVersion))
	if err != nil {
		return 0, fmt.Errorf("failed to get ledger version: %w", err)
	}
	if value == nil {
		return 0, nil
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("corrupt ledger version: %d bytes", len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

// StageVersionBump guards the batch on the version still being read and
// moves it to read+1
func (s *GenericStateMetaStore) StageVersionBump(batch db.DatabaseBatch, read uint64) {
	key := []byte(KeyLedgerVersion)
	batch.Guard(key, encodeVersion(read))
	batch.Put(key, encodeVersion(read+1))
}

// encodeVersion maps version 0 to the absent key
func encodeVersion(v uint64) []byte {
	if v == 0 {
		return nil
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}
