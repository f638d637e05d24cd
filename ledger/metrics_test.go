package ledger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/monitoring"
	"github.com/mezonai/circlepay/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrapeMetrics(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	monitoring.RegisterMetrics(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestSyncGaugesSeedsFromStoredParams(t *testing.T) {
	monitoring.InitMetrics()

	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	stores, err := store.NewStores(provider)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	first := NewLedger(stores, nil)
	_, err = first.InitState(testOwner, 75, 40)
	require.NoError(t, err)
	registerFunded(t, first, "alice", 500)
	registerFunded(t, first, "bob", 0)
	_, err = first.Pay("alice", "bob", 100)
	require.NoError(t, err)
	_, err = first.AdvanceHeight(2)
	require.NoError(t, err)

	// a restarted process starts from zeroed gauges
	monitoring.SetLedgerHeight(0)
	monitoring.SetFeeRate(0)
	monitoring.SetTxLogSize(0)

	restarted := NewLedger(stores, nil)
	require.NoError(t, restarted.SyncGauges())

	body := scrapeMetrics(t)
	assert.Contains(t, body, "circlepay_ledger_height 42")
	assert.Contains(t, body, "circlepay_fee_rate_bps 75")
	assert.Contains(t, body, "circlepay_tx_log_size 1")
}

func TestSyncGaugesOnEmptyStore(t *testing.T) {
	monitoring.InitMetrics()
	l := newUninitializedLedger(t)
	require.NoError(t, l.SyncGauges())

	body := scrapeMetrics(t)
	assert.Contains(t, body, "circlepay_ledger_height 0")
	assert.Contains(t, body, "circlepay_tx_log_size 0")
	assert.Contains(t, body, "circlepay_fee_rate_bps 50")
}
