package store

import (
	"fmt"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/types"
)

type AccountStore interface {
	StageInBatch(batch db.DatabaseBatch, accounts ...*types.Account) error
	GetByIdentity(identity string) (*types.Account, error)
	GetBatch(identities []string) (map[string]*types.Account, error)
	ExistsByIdentity(identity string) (bool, error)
	MustClose()
}

type GenericAccountStore struct {
	dbProvider db.DatabaseProvider
}

func NewGenericAccountStore(dbProvider db.DatabaseProvider) (*GenericAccountStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericAccountStore{
		dbProvider: dbProvider,
	}, nil
}

// StageInBatch adds the encoded accounts to batch; nothing is written until the
// batch is committed
func (as *GenericAccountStore) StageInBatch(batch db.DatabaseBatch, accounts ...*types.Account) error {
	for _, account := range accounts {
		data, err := jsonx.Marshal(account)
		if err != nil {
			return fmt.Errorf("failed to marshal account %s: %w", account.Identity, err)
		}
		batch.Put(as.getDbKey(account.Identity), data)
	}
	return nil
}

// GetByIdentity returns account instance from db, return both nil if not exist
func (as *GenericAccountStore) GetByIdentity(identity string) (*types.Account, error) {
	data, err := as.dbProvider.Get(as.getDbKey(identity))
	if err != nil {
		return nil, fmt.Errorf("could not get account %s from db: %w", identity, err)
	}

	// Account doesn't exist
	if data == nil {
		return nil, nil
	}

	var acc types.Account
	if err := jsonx.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account %s: %w", identity, err)
	}
	return &acc, nil
}

// GetBatch retrieves multiple accounts by identity. Missing accounts return as nil entries.
func (as *GenericAccountStore) GetBatch(identities []string) (map[string]*types.Account, error) {
	keys := make([][]byte, 0, len(identities))
	for _, id := range identities {
		keys = append(keys, as.getDbKey(id))
	}
	raw, err := as.dbProvider.GetBatch(keys)
	if err != nil {
		return nil, fmt.Errorf("could not get accounts from db: %w", err)
	}

	result := make(map[string]*types.Account, len(identities))
	for _, id := range identities {
		data, ok := raw[string(as.getDbKey(id))]
		if !ok {
			result[id] = nil
			continue
		}
		var acc types.Account
		if err := jsonx.Unmarshal(data, &acc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account %s: %w", id, err)
		}
		result[id] = &acc
	}
	return result, nil
}

func (as *GenericAccountStore) ExistsByIdentity(identity string) (bool, error) {
	return as.dbProvider.Has(as.getDbKey(identity))
}

func (as *GenericAccountStore) MustClose() {
	if err := as.dbProvider.Close(); err != nil {
		logx.Error("ACCOUNT_STORE", "Failed to close db provider:", err.Error())
	}
}

func (as *GenericAccountStore) getDbKey(identity string) []byte {
	return []byte(PrefixAccount + identity)
}
