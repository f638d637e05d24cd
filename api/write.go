package api

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mezonai/circlepay/errors"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/security/validation"
)

// CallerHeader carries the identity performing a write
const CallerHeader = "X-Circlepay-Caller"

const maxRequestBytes = 64 << 10

type InitRequest struct {
	Owner      string `json:"owner"`
	FeeRateBps uint16 `json:"fee_rate_bps"`
	Height     uint64 `json:"height"`
}

type RegisterRequest struct {
	ContactInfo string `json:"contact_info"`
}

type AmountRequest struct {
	Amount uint64 `json:"amount"`
}

type PayRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type AutoSaveRequest struct {
	Percent uint8 `json:"percent"`
}

type CreateCircleRequest struct {
	Name               string `json:"name"`
	TargetAmount       uint64 `json:"target_amount"`
	MaxMembers         uint32 `json:"max_members"`
	ContributionAmount uint64 `json:"contribution_amount"`
	PayoutFrequency    uint32 `json:"payout_frequency"`
}

type FeeRequest struct {
	FeeRateBps uint16 `json:"fee_rate_bps"`
}

// HeightRequest sets exactly one of Delta and Height
type HeightRequest struct {
	Delta  *uint64 `json:"delta,omitempty"`
	Height *uint64 `json:"height,omitempty"`
}

type CreatedResponse struct {
	Created bool `json:"created"`
}

type AmountResponse struct {
	Amount uint64 `json:"amount"`
}

type PercentResponse struct {
	Percent uint8 `json:"percent"`
}

type CircleIDResponse struct {
	CircleID uint64 `json:"circle_id"`
}

type FeeResponse struct {
	FeeRateBps uint16 `json:"fee_rate_bps"`
}

type HeightResponse struct {
	Height uint64 `json:"height"`
}

func (s *APIServer) handleInit(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.Ledger.InitState(req.Owner, req.FeeRateBps, req.Height)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, CreatedResponse{Created: created})
}

func (s *APIServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	created, err := s.Ledger.Register(caller, req.ContactInfo)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, CreatedResponse{Created: created})
}

func (s *APIServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleAmountOp(w, r, s.Ledger.Deposit)
}

func (s *APIServer) handleSave(w http.ResponseWriter, r *http.Request) {
	s.handleAmountOp(w, r, s.Ledger.ManualSave)
}

func (s *APIServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleAmountOp(w, r, s.Ledger.WithdrawSavings)
}

// handleAmountOp serves the caller-plus-amount operations
func (s *APIServer) handleAmountOp(w http.ResponseWriter, r *http.Request, op func(identity string, amount uint64) (uint64, error)) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := op(caller, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, AmountResponse{Amount: amount})
}

func (s *APIServer) handleAutoSave(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	var req AutoSaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	percent, err := s.Ledger.SetAutoSavePercent(caller, req.Percent)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, PercentResponse{Percent: percent})
}

func (s *APIServer) handlePay(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	var req PayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	paid, err := s.Ledger.Pay(caller, req.To, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, AmountResponse{Amount: paid})
}

func (s *APIServer) handleCreateCircle(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	var req CreateCircleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.Ledger.CreateCircle(caller, req.Name, req.TargetAmount, req.MaxMembers, req.ContributionAmount, req.PayoutFrequency)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, CircleIDResponse{CircleID: id})
}

func (s *APIServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := s.Ledger.JoinCircle(id, caller); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleContribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	amount, err := s.Ledger.Contribute(id, caller)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, AmountResponse{Amount: amount})
}

func (s *APIServer) handleSetFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerHeader(w, r)
	if !ok {
		return
	}
	var req FeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rate, err := s.Ledger.SetFeeRate(caller, req.FeeRateBps)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, FeeResponse{FeeRateBps: rate})
}

func (s *APIServer) handleHeight(w http.ResponseWriter, r *http.Request) {
	var req HeightRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var (
		height uint64
		err    error
	)
	switch {
	case req.Delta != nil && req.Height != nil:
		writeLedgerError(w, errors.NewError(errors.ErrCodeInvalidInput, "delta and height are mutually exclusive"))
		return
	case req.Height != nil:
		height, err = s.Ledger.SetHeight(*req.Height)
	case req.Delta != nil:
		height, err = s.Ledger.AdvanceHeight(*req.Delta)
	default:
		height, err = s.Ledger.AdvanceHeight(1)
	}
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, HeightResponse{Height: height})
}

func callerHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := r.Header.Get(CallerHeader)
	if err := validation.ValidateIdentity(caller); err != nil {
		writeLedgerError(w, err)
		return "", false
	}
	return caller, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeLedgerError(w, errors.NewError(errors.ErrCodeInvalidInput, "could not read request body"))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := jsonx.Unmarshal(body, v); err != nil {
		writeLedgerError(w, errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid request body: %v", err)))
		return false
	}
	return true
}

// statusOf maps a ledger code onto the HTTP status a client sees
func statusOf(code errors.LedgerErrorCode) int {
	switch code {
	case errors.ErrCodeNotOwner:
		return http.StatusForbidden
	case errors.ErrCodeUserNotFound, errors.ErrCodeCircleNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeLedgerError sends err as a LedgerError body. Storage failures are
// logged and reported without their cause.
func writeLedgerError(w http.ResponseWriter, err error) {
	code, _ := errors.CodeOf(err)
	le := &errors.LedgerError{Code: code, Message: err.Error()}
	var ledgerErr *errors.LedgerError
	if stderrors.As(err, &ledgerErr) {
		le.Message = ledgerErr.Message
	}
	if code == errors.ErrCodeStorage {
		logx.Error("API", fmt.Sprintf("write failed: %v", err))
		le.Message = "storage failure"
	}
	body, _ := jsonx.Marshal(le)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusOf(code))
	_, _ = w.Write(body)
}
