package errors

import (
	stderrors "errors"

	"github.com/mezonai/circlepay/jsonx"
)

// LedgerErrorCode is the stable numeric identifier of a ledger failure
type LedgerErrorCode uint32

const (
	// Contract errors
	ErrCodeNotOwner            LedgerErrorCode = 100
	ErrCodeInsufficientBalance LedgerErrorCode = 101
	ErrCodeInvalidAmount       LedgerErrorCode = 102
	ErrCodeUserNotFound        LedgerErrorCode = 103
	ErrCodeCircleNotFound      LedgerErrorCode = 104
	ErrCodeAlreadyMember       LedgerErrorCode = 105
	ErrCodeNotMember           LedgerErrorCode = 106
	ErrCodeCircleFull          LedgerErrorCode = 107

	// Internal errors
	ErrCodeOverflow         LedgerErrorCode = 900
	ErrCodeInvalidInput     LedgerErrorCode = 901
	ErrCodeHeightRegression LedgerErrorCode = 902
	ErrCodeStorage          LedgerErrorCode = 903
	ErrCodeConflict         LedgerErrorCode = 904
)

var codeNames = map[LedgerErrorCode]string{
	ErrCodeNotOwner:            "not_owner",
	ErrCodeInsufficientBalance: "insufficient_balance",
	ErrCodeInvalidAmount:       "invalid_amount",
	ErrCodeUserNotFound:        "user_not_found",
	ErrCodeCircleNotFound:      "circle_not_found",
	ErrCodeAlreadyMember:       "already_member",
	ErrCodeNotMember:           "not_member",
	ErrCodeCircleFull:          "circle_full",
	ErrCodeOverflow:            "overflow",
	ErrCodeInvalidInput:        "invalid_input",
	ErrCodeHeightRegression:    "height_regression",
	ErrCodeStorage:             "storage",
	ErrCodeConflict:            "conflict",
}

// String returns the snake_case name used in logs and metric labels
func (c LedgerErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Internal reports whether the code lies outside the contract taxonomy
func (c LedgerErrorCode) Internal() bool {
	return c >= ErrCodeOverflow
}

// Error message constants - user-friendly and concise
const (
	ErrMsgNotOwner            = "Only the ledger owner can perform this action"
	ErrMsgInsufficientBalance = "Not enough balance for this operation"
	ErrMsgInvalidAmount       = "Amount is invalid or zero"
	ErrMsgUserNotFound        = "Account does not exist"
	ErrMsgCircleNotFound      = "Circle does not exist or is inactive"
	ErrMsgAlreadyMember       = "Already a member of this circle"
	ErrMsgNotMember           = "Not a member of this circle"
	ErrMsgCircleFull          = "Circle has reached its member limit"
	ErrMsgOverflow            = "Arithmetic overflow, operation aborted"
	ErrMsgHeightRegression    = "Height cannot move backwards"
	ErrMsgConflict            = "Ledger changed while the operation ran, retry it"
	ErrMsgTextTooLong         = "Field '%s' exceeds %d bytes"
	ErrMsgFieldRequired       = "Field '%s' is required"
	ErrMsgInvalidField        = "Field '%s' is invalid"
)

// LedgerError is the error returned by every rejected ledger operation
type LedgerError struct {
	Code    LedgerErrorCode `json:"code"`
	Message string          `json:"message"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	b, _ := jsonx.Marshal(LedgerError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(b)
}

// Is matches any LedgerError carrying the same code, so callers can compare
// against the sentinels regardless of message.
func (e *LedgerError) Is(target error) bool {
	var t *LedgerError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new LedgerError and returns it as error interface
func NewError(code LedgerErrorCode, message string) error {
	return &LedgerError{
		Code:    code,
		Message: message,
	}
}

var (
	ErrNotOwner            = NewError(ErrCodeNotOwner, ErrMsgNotOwner)
	ErrInsufficientBalance = NewError(ErrCodeInsufficientBalance, ErrMsgInsufficientBalance)
	ErrInvalidAmount       = NewError(ErrCodeInvalidAmount, ErrMsgInvalidAmount)
	ErrUserNotFound        = NewError(ErrCodeUserNotFound, ErrMsgUserNotFound)
	ErrCircleNotFound      = NewError(ErrCodeCircleNotFound, ErrMsgCircleNotFound)
	ErrAlreadyMember       = NewError(ErrCodeAlreadyMember, ErrMsgAlreadyMember)
	ErrNotMember           = NewError(ErrCodeNotMember, ErrMsgNotMember)
	ErrCircleFull          = NewError(ErrCodeCircleFull, ErrMsgCircleFull)
	ErrOverflow            = NewError(ErrCodeOverflow, ErrMsgOverflow)
	ErrHeightRegression    = NewError(ErrCodeHeightRegression, ErrMsgHeightRegression)
	ErrConflict            = NewError(ErrCodeConflict, ErrMsgConflict)
)

// CodeOf extracts the ledger code from err. Errors that did not originate from
// the ledger taxonomy (I/O, encoding) report ErrCodeStorage.
func CodeOf(err error) (LedgerErrorCode, bool) {
	if err == nil {
		return 0, false
	}
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Code, true
	}
	return ErrCodeStorage, true
}
