package store

import (
	"fmt"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/types"
)

// TxStore is the append-only transaction log. Ids are assigned by the ledger;
// the store only persists and reads them back.
type TxStore interface {
	StageInBatch(batch db.DatabaseBatch, tx *types.Transaction) error
	GetByID(id uint64) (*types.Transaction, error)
	GetRange(fromID, toID uint64) ([]*types.Transaction, error)
	MustClose()
}

// GenericTxStore provides transaction storage operations
type GenericTxStore struct {
	dbProvider db.DatabaseProvider
}

// NewGenericTxStore creates a new transaction store
func NewGenericTxStore(dbProvider db.DatabaseProvider) (*GenericTxStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericTxStore{
		dbProvider: dbProvider,
	}, nil
}

// StageInBatch adds tx to batch
func (ts *GenericTxStore) StageInBatch(batch db.DatabaseBatch, tx *types.Transaction) error {
	data, err := jsonx.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction %d: %w", tx.ID, err)
	}
	batch.Put(idKey(PrefixTx, tx.ID), data)
	return nil
}

// GetByID retrieves a transaction by id, nil if it was never written
func (ts *GenericTxStore) GetByID(id uint64) (*types.Transaction, error) {
	data, err := ts.dbProvider.Get(idKey(PrefixTx, id))
	if err != nil {
		return nil, fmt.Errorf("could not get transaction %d from db: %w", id, err)
	}
	if data == nil {
		return nil, nil
	}

	var tx types.Transaction
	if err := jsonx.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction %d: %w", id, err)
	}
	return &tx, nil
}

// GetRange returns the transactions with fromID <= id < toID in id order,
// skipping ids that are absent
func (ts *GenericTxStore) GetRange(fromID, toID uint64) ([]*types.Transaction, error) {
	if toID <= fromID {
		return []*types.Transaction{}, nil
	}

	keys := make([][]byte, 0, toID-fromID)
	for id := fromID; id < toID; id++ {
		keys = append(keys, idKey(PrefixTx, id))
	}
	raw, err := ts.dbProvider.GetBatch(keys)
	if err != nil {
		return nil, fmt.Errorf("could not get transactions [%d,%d) from db: %w", fromID, toID, err)
	}

	transactions := make([]*types.Transaction, 0, len(raw))
	for _, key := range keys {
		data, ok := raw[string(key)]
		if !ok {
			continue
		}
		var tx types.Transaction
		if err := jsonx.Unmarshal(data, &tx); err != nil {
			logx.Warn("TX_STORE", fmt.Sprintf("Failed to unmarshal transaction: %s", err.Error()))
			continue
		}
		transactions = append(transactions, &tx)
	}
	return transactions, nil
}

// MustClose closes the transaction store and related resources
func (ts *GenericTxStore) MustClose() {
	if err := ts.dbProvider.Close(); err != nil {
		logx.Error("TX_STORE", "Failed to close provider")
	}
}
