package store

import (
	"path/filepath"
	"testing"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStores(t *testing.T) *Stores {
	t.Helper()
	stores, err := CreateStore(&StoreConfig{Type: MemoryStoreType})
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores
}

func commit(t *testing.T, stores *Stores, fn func(batch db.DatabaseBatch) error) {
	t.Helper()
	require.NoError(t, db.NewDBTxManager(stores.Provider).WithBatch(fn))
}

func TestAccountStoreRoundTrip(t *testing.T) {
	stores := newMemStores(t)

	acc, err := stores.Accounts.GetByIdentity("alice")
	require.NoError(t, err)
	assert.Nil(t, acc)

	alice := types.NewAccount("alice", "a@x", 1)
	alice.SpendableBalance = 500
	bob := types.NewAccount("bob", "", 2)
	commit(t, stores, func(batch db.DatabaseBatch) error {
		return stores.Accounts.StageInBatch(batch, alice, bob)
	})

	got, err := stores.Accounts.GetByIdentity("alice")
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	exists, err := stores.Accounts.ExistsByIdentity("bob")
	require.NoError(t, err)
	assert.True(t, exists)

	batch, err := stores.Accounts.GetBatch([]string{"alice", "carol"})
	require.NoError(t, err)
	assert.Equal(t, alice, batch["alice"])
	v, present := batch["carol"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestCircleStoreMembers(t *testing.T) {
	stores := newMemStores(t)

	circle := &types.Circle{ID: 1, Name: "family", Creator: "alice", MaxMembers: 3, MemberCount: 2, Active: true}
	other := &types.Circle{ID: 2, Name: "work", Creator: "carol", MaxMembers: 2, MemberCount: 1, Active: true}
	commit(t, stores, func(batch db.DatabaseBatch) error {
		if err := stores.Circles.StageCircle(batch, circle); err != nil {
			return err
		}
		if err := stores.Circles.StageCircle(batch, other); err != nil {
			return err
		}
		for _, m := range []*types.Membership{
			{CircleID: 1, Member: "bob", JoinedAt: 5},
			{CircleID: 1, Member: "alice", JoinedAt: 3},
			{CircleID: 2, Member: "carol", JoinedAt: 4},
		} {
			if err := stores.Circles.StageMembership(batch, m); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := stores.Circles.GetCircle(1)
	require.NoError(t, err)
	assert.Equal(t, circle, got)

	missing, err := stores.Circles.GetCircle(9)
	require.NoError(t, err)
	assert.Nil(t, missing)

	m, err := stores.Circles.GetMembership(types.MembershipKey{CircleID: 1, Member: "bob"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, uint64(5), m.JoinedAt)

	none, err := stores.Circles.GetMembership(types.MembershipKey{CircleID: 2, Member: "bob"})
	require.NoError(t, err)
	assert.Nil(t, none)

	members, err := stores.Circles.ListMembers(1)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Member)
	assert.Equal(t, "bob", members[1].Member)
}

func TestTxStoreRange(t *testing.T) {
	stores := newMemStores(t)

	commit(t, stores, func(batch db.DatabaseBatch) error {
		for id := uint64(1); id <= 4; id++ {
			tx := &types.Transaction{ID: id, From: "alice", To: "bob", Amount: id * 10, Kind: types.TxKindPayment}
			if err := stores.Txs.StageInBatch(batch, tx); err != nil {
				return err
			}
		}
		return nil
	})

	tx, err := stores.Txs.GetByID(3)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, uint64(30), tx.Amount)

	missing, err := stores.Txs.GetByID(99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	txs, err := stores.Txs.GetRange(2, 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, uint64(2), txs[0].ID)
	assert.Equal(t, uint64(4), txs[2].ID)

	empty, err := stores.Txs.GetRange(5, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStateMetaDefaultsAndPersist(t *testing.T) {
	stores := newMemStores(t)

	params, err := stores.Meta.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), params)

	params.Owner = "owner"
	params.FeeRateBps = 0
	params.Height = 42
	commit(t, stores, func(batch db.DatabaseBatch) error {
		return stores.Meta.StageInBatch(batch, params)
	})

	loaded, err := stores.Meta.Load()
	require.NoError(t, err)
	assert.Equal(t, "owner", loaded.Owner)
	assert.Equal(t, uint16(0), loaded.FeeRateBps, "explicit zero fee must not fall back to default")
	assert.Equal(t, uint64(42), loaded.Height)
}

func TestStoreConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{name: "memory", cfg: StoreConfig{Type: MemoryStoreType}},
		{name: "leveldb", cfg: StoreConfig{Type: LevelDBStoreType, Directory: "data"}},
		{name: "leveldb no dir", cfg: StoreConfig{Type: LevelDBStoreType}, wantErr: true},
		{name: "redis no addr", cfg: StoreConfig{Type: RedisStoreType}, wantErr: true},
		{name: "postgres", cfg: StoreConfig{Type: PostgresStoreType, PostgresDSN: "postgres://x"}},
		{name: "empty", cfg: StoreConfig{}, wantErr: true},
		{name: "unknown", cfg: StoreConfig{Type: "mongo"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateBoltStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	stores, err := CreateStore(&StoreConfig{Type: BoltStoreType, Directory: dir})
	require.NoError(t, err)
	defer stores.Close()

	commit(t, stores, func(batch db.DatabaseBatch) error {
		return stores.Accounts.StageInBatch(batch, types.NewAccount("alice", "", 0))
	})
	ok, err := stores.Accounts.ExistsByIdentity("alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStateMetaVersionBumpIsGuarded(t *testing.T) {
	stores := newMemStores(t)
	tm := db.NewDBTxManager(stores.Provider)

	v, err := stores.Meta.Version()
	require.NoError(t, err)
	assert.Zero(t, v)

	commit(t, stores, func(batch db.DatabaseBatch) error {
		stores.Meta.StageVersionBump(batch, 0)
		return nil
	})
	v, err = stores.Meta.Version()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	// a writer that still believes the version is 0 must lose
	err = tm.WithBatch(func(batch db.DatabaseBatch) error {
		stores.Meta.StageVersionBump(batch, 0)
		return stores.Meta.StageInBatch(batch, &types.Params{Owner: "mallory"})
	})
	require.ErrorIs(t, err, db.ErrWriteConflict)

	params, err := stores.Meta.Load()
	require.NoError(t, err)
	assert.Empty(t, params.Owner)
	v, err = stores.Meta.Version()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}
