package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/errors"
	"github.com/mezonai/circlepay/events"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/ledger"
	"github.com/mezonai/circlepay/store"
	"github.com/mezonai/circlepay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientEnv(t *testing.T) (*Client, *ledger.Ledger) {
	t.Helper()
	s, ld := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), ld
}

func post(t *testing.T, s *APIServer, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestClientWritesThroughServer(t *testing.T) {
	c, ld := newClientEnv(t)

	created, err := c.Register("carol", "carol@mail")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = c.Register("carol", "")
	require.NoError(t, err)
	assert.False(t, created)

	deposited, err := c.Deposit("carol", 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), deposited)

	pct, err := c.SetAutoSavePercent("carol", 0)
	require.NoError(t, err)
	assert.Zero(t, pct)

	paid, err := c.Pay("carol", "bob", 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), paid)

	saved, err := c.ManualSave("carol", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), saved)
	withdrawn, err := c.WithdrawSavings("carol", 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), withdrawn)

	carol, err := ld.GetAccount("carol")
	require.NoError(t, err)
	assert.Equal(t, uint64(239), carol.SpendableBalance, "500 - 200 - 1 fee - 100 saved + 40 withdrawn")
	assert.Equal(t, uint64(60), carol.SavingsBalance)

	id, err := c.CreateCircle("carol", "club", 1000, 3, 20, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
	require.NoError(t, c.JoinCircle(id, "bob"))
	contributed, err := c.Contribute(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), contributed)

	rate, err := c.SetFeeRate("owner", 100)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), rate)

	height, err := c.AdvanceHeight(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), height)
	height, err = c.SetHeight(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), height)

	params, err := ld.Params()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), params.Height)
	assert.Equal(t, uint16(100), params.FeeRateBps)
}

func TestClientSurfacesLedgerErrors(t *testing.T) {
	c, ld := newClientEnv(t)
	before, err := ld.Params()
	require.NoError(t, err)

	_, err = c.Pay("bob", "alice", 1_000_000)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

	_, err = c.SetFeeRate("alice", 10)
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	_, err = c.Deposit("ghost", 1)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	err = c.JoinCircle(1, "bob")
	assert.ErrorIs(t, err, errors.ErrAlreadyMember)

	_, err = c.InitState("someone-else", 0, 0)
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	after, err := ld.Params()
	require.NoError(t, err)
	assert.Equal(t, before.NextTxID, after.NextTxID)
}

func TestClientReads(t *testing.T) {
	c, _ := newClientEnv(t)

	acc, err := c.GetAccount("alice")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, uint64(890), acc.SpendableBalance)

	acc, err = c.GetAccount("ghost")
	require.NoError(t, err)
	assert.Nil(t, acc)

	circle, err := c.GetCircle(1)
	require.NoError(t, err)
	require.NotNil(t, circle)
	assert.Equal(t, "family", circle.Name)

	m, err := c.GetMembership(1, "bob")
	require.NoError(t, err)
	require.NotNil(t, m)
	members, err := c.ListMembers(1)
	require.NoError(t, err)
	assert.Len(t, members, 2)
	members, err = c.ListMembers(42)
	require.NoError(t, err)
	assert.Empty(t, members)

	tx, err := c.GetTransaction(1)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, types.TxKindPayment, tx.Kind)

	txs, err := c.ListTransactions(0, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	total, page, err := c.TransactionsOf("bob", 10, 0, types.TxFilterOutgoing)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)

	params, err := c.Params()
	require.NoError(t, err)
	assert.Equal(t, "owner", params.Owner)
}

func TestWriteRequestValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := post(t, s, "/accounts/deposit", "", `{"amount":5}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var le errors.LedgerError
	require.NoError(t, jsonx.Unmarshal(rec.Body.Bytes(), &le))
	assert.Equal(t, errors.ErrCodeInvalidInput, le.Code)

	rec = post(t, s, "/accounts/deposit", "alice", `{"amount":`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(t, s, "/admin/height", "", `{"delta":1,"height":9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(t, s, "/admin/height", "", ``)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"height":1}`, rec.Body.String())

	rec = post(t, s, "/admin/fee", "bob", `{"fee_rate_bps":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = post(t, s, "/circles/abc/join", "bob", ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerCommitsReachEventBus(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	stores, err := store.NewStores(provider)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	bus := events.NewEventBus()
	_, ch := bus.Subscribe(events.EventOperationCommitted)
	s := NewAPIServer(ledger.NewLedger(stores, bus), "127.0.0.1:0")

	rec := post(t, s, "/accounts", "dana", `{"contact_info":"d@x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case ev := <-ch:
		assert.Equal(t, ledger.OpRegister, ev.Op())
		assert.Equal(t, "dana", ev.Caller())
	case <-time.After(time.Second):
		t.Fatal("no commit event for a write served over HTTP")
	}
}
