package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/ledger"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/monitoring"
	"github.com/mezonai/circlepay/security/validation"
	"github.com/mezonai/circlepay/types"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// TxPage is the response of the paged transaction endpoints
type TxPage struct {
	Total uint32               `json:"total"`
	Txs   []*types.Transaction `json:"txs"`
}

// APIServer exposes the ledger over HTTP: GET routes for every read accessor
// and POST routes for every operation. A running server is the only process
// with the store open, so it is the single writer other clients go through.
type APIServer struct {
	Ledger     *ledger.Ledger
	ListenAddr string
	server     *http.Server
}

func NewAPIServer(ld *ledger.Ledger, addr string) *APIServer {
	return &APIServer{
		Ledger:     ld,
		ListenAddr: addr,
	}
}

// Handler returns the routing table. Exposed separately so tests can drive it
// with httptest.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts/{identity}", s.handleAccount)
	mux.HandleFunc("GET /accounts/{identity}/txs", s.handleAccountTxs)
	mux.HandleFunc("GET /circles/{id}", s.handleCircle)
	mux.HandleFunc("GET /circles/{id}/members", s.handleCircleMembers)
	mux.HandleFunc("GET /circles/{id}/members/{identity}", s.handleMembership)
	mux.HandleFunc("GET /txs/{id}", s.handleTx)
	mux.HandleFunc("GET /txs", s.handleTxs)
	mux.HandleFunc("GET /params", s.handleParams)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /init", s.handleInit)
	mux.HandleFunc("POST /accounts", s.handleRegister)
	mux.HandleFunc("POST /accounts/deposit", s.handleDeposit)
	mux.HandleFunc("POST /accounts/autosave", s.handleAutoSave)
	mux.HandleFunc("POST /pay", s.handlePay)
	mux.HandleFunc("POST /save", s.handleSave)
	mux.HandleFunc("POST /withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /circles", s.handleCreateCircle)
	mux.HandleFunc("POST /circles/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /circles/{id}/contribute", s.handleContribute)
	mux.HandleFunc("POST /admin/fee", s.handleSetFee)
	mux.HandleFunc("POST /admin/height", s.handleHeight)
	monitoring.RegisterMetrics(mux)
	return mux
}

// Start serves until ctx is cancelled, then shuts the listener down gracefully
func (s *APIServer) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info("API", fmt.Sprintf("HTTP API listening on %s", s.ListenAddr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logx.Info("API", "Shutting down HTTP API")
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}
	account, err := s.Ledger.GetAccount(identity)
	if err != nil {
		writeInternal(w, "failed to get account", err)
		return
	}
	if account == nil {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, account)
}

func (s *APIServer) handleAccountTxs(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	limit, err := parseUintQuery(query.Get("limit"), 32)
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	offset, err := parseUintQuery(query.Get("offset"), 32)
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	filter, err := types.ParseTxFilter(query.Get("filter"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	total, txs, err := s.Ledger.TransactionsOf(identity, uint32(limit), uint32(offset), filter)
	if err != nil {
		writeInternal(w, "failed to list transactions", err)
		return
	}
	writeJSON(w, TxPage{Total: total, Txs: txs})
}

func (s *APIServer) handleCircle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	circle, err := s.Ledger.GetCircle(id)
	if err != nil {
		writeInternal(w, "failed to get circle", err)
		return
	}
	if circle == nil {
		http.Error(w, "circle not found", http.StatusNotFound)
		return
	}
	writeJSON(w, circle)
}

func (s *APIServer) handleCircleMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	circle, err := s.Ledger.GetCircle(id)
	if err != nil {
		writeInternal(w, "failed to get circle", err)
		return
	}
	if circle == nil {
		http.Error(w, "circle not found", http.StatusNotFound)
		return
	}
	members, err := s.Ledger.ListMembers(id)
	if err != nil {
		writeInternal(w, "failed to list members", err)
		return
	}
	writeJSON(w, members)
}

func (s *APIServer) handleMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}
	membership, err := s.Ledger.GetMembership(id, identity)
	if err != nil {
		writeInternal(w, "failed to get membership", err)
		return
	}
	if membership == nil {
		http.Error(w, "membership not found", http.StatusNotFound)
		return
	}
	writeJSON(w, membership)
}

func (s *APIServer) handleTx(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	tx, err := s.Ledger.GetTransaction(id)
	if err != nil {
		writeInternal(w, "failed to get transaction", err)
		return
	}
	if tx == nil {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, tx)
}

func (s *APIServer) handleTxs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseUintQuery(query.Get("limit"), 64)
	if err != nil {
		http.Error(w, "invalid limit", http.StatusBadRequest)
		return
	}
	offset, err := parseUintQuery(query.Get("offset"), 64)
	if err != nil {
		http.Error(w, "invalid offset", http.StatusBadRequest)
		return
	}
	txs, err := s.Ledger.ListTransactions(offset, limit)
	if err != nil {
		writeInternal(w, "failed to list transactions", err)
		return
	}
	writeJSON(w, txs)
}

func (s *APIServer) handleParams(w http.ResponseWriter, r *http.Request) {
	params, err := s.Ledger.Params()
	if err != nil {
		writeInternal(w, "failed to get params", err)
		return
	}
	writeJSON(w, params)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Ledger.Params(); err != nil {
		writeInternal(w, "ledger unavailable", err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func identityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := r.PathValue("identity")
	if err := validation.ValidateIdentity(identity); err != nil {
		http.Error(w, "invalid identity", http.StatusBadRequest)
		return "", false
	}
	return identity, true
}

func idParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// parseUintQuery treats an absent value as 0, which the ledger maps to its default page size
func parseUintQuery(raw string, bits int) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, bits)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := jsonx.Marshal(v)
	if err != nil {
		writeInternal(w, "failed to encode response", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func writeInternal(w http.ResponseWriter, msg string, err error) {
	logx.Error("API", fmt.Sprintf("%s: %v", msg, err))
	http.Error(w, msg, http.StatusInternalServerError)
}
