package events

import (
	"time"

	ledgererrors "github.com/mezonai/circlepay/errors"
)

// EventType is an enum-like string type for ledger events
type EventType string

const (
	EventOperationCommitted EventType = "OperationCommitted"
	EventOperationRejected  EventType = "OperationRejected"
)

// LedgerEvent represents the outcome of one ledger operation
type LedgerEvent interface {
	Type() EventType
	Timestamp() time.Time
	Op() string
	Caller() string
}

// OperationCommitted event when an operation's batch has been written
type OperationCommitted struct {
	op        string
	caller    string
	txID      uint64
	height    uint64
	stateHash string
	timestamp time.Time
}

// NewOperationCommitted builds the event. txID is 0 when the operation did not append to the log.
func NewOperationCommitted(op, caller string, txID, height uint64, stateHash string) *OperationCommitted {
	return &OperationCommitted{
		op:        op,
		caller:    caller,
		txID:      txID,
		height:    height,
		stateHash: stateHash,
		timestamp: time.Now(),
	}
}

func (e *OperationCommitted) Type() EventType {
	return EventOperationCommitted
}

func (e *OperationCommitted) Timestamp() time.Time {
	return e.timestamp
}

func (e *OperationCommitted) Op() string {
	return e.op
}

func (e *OperationCommitted) Caller() string {
	return e.caller
}

func (e *OperationCommitted) TxID() uint64 {
	return e.txID
}

func (e *OperationCommitted) Height() uint64 {
	return e.height
}

func (e *OperationCommitted) StateHash() string {
	return e.stateHash
}

// OperationRejected event when an operation failed and left state untouched
type OperationRejected struct {
	op        string
	caller    string
	code      ledgererrors.LedgerErrorCode
	message   string
	timestamp time.Time
}

func NewOperationRejected(op, caller string, code ledgererrors.LedgerErrorCode, message string) *OperationRejected {
	return &OperationRejected{
		op:        op,
		caller:    caller,
		code:      code,
		message:   message,
		timestamp: time.Now(),
	}
}

func (e *OperationRejected) Type() EventType {
	return EventOperationRejected
}

func (e *OperationRejected) Timestamp() time.Time {
	return e.timestamp
}

func (e *OperationRejected) Op() string {
	return e.op
}

func (e *OperationRejected) Caller() string {
	return e.caller
}

func (e *OperationRejected) Code() ledgererrors.LedgerErrorCode {
	return e.code
}

func (e *OperationRejected) Message() string {
	return e.message
}
