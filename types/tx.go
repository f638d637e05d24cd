package types

import (
	"fmt"

	"github.com/mezonai/circlepay/jsonx"
)

// TxKind classifies a logged ledger transaction
type TxKind uint8

const (
	TxKindPayment TxKind = iota + 1
	TxKindSavings
	TxKindCircleContribution
)

func (k TxKind) String() string {
	switch k {
	case TxKindPayment:
		return "payment"
	case TxKindSavings:
		return "savings"
	case TxKindCircleContribution:
		return "circle_contribution"
	default:
		return "unknown"
	}
}

func (k TxKind) MarshalJSON() ([]byte, error) {
	return jsonx.Marshal(k.String())
}

func (k *TxKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := jsonx.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "payment":
		*k = TxKindPayment
	case "savings":
		*k = TxKindSavings
	case "circle_contribution":
		*k = TxKindCircleContribution
	default:
		return fmt.Errorf("unknown transaction kind %q", s)
	}
	return nil
}

// Transaction is an immutable audit log entry
type Transaction struct {
	ID        uint64 `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	Kind      TxKind `json:"kind"`
	Timestamp uint64 `json:"timestamp"`
}

// TxFilter selects log entries relative to one identity
type TxFilter uint32

const (
	TxFilterAll TxFilter = iota
	TxFilterOutgoing
	TxFilterIncoming
)

// Matches reports whether tx involves identity in the way the filter asks for
func (f TxFilter) Matches(tx *Transaction, identity string) bool {
	switch f {
	case TxFilterOutgoing:
		return tx.From == identity
	case TxFilterIncoming:
		return tx.To == identity
	default:
		return tx.From == identity || tx.To == identity
	}
}

func (f TxFilter) String() string {
	switch f {
	case TxFilterOutgoing:
		return "outgoing"
	case TxFilterIncoming:
		return "incoming"
	default:
		return "all"
	}
}

// ParseTxFilter reads the textual filter used by the CLI and the HTTP API.
// An empty string means all.
func ParseTxFilter(raw string) (TxFilter, error) {
	switch raw {
	case "", "all":
		return TxFilterAll, nil
	case "outgoing":
		return TxFilterOutgoing, nil
	case "incoming":
		return TxFilterIncoming, nil
	default:
		return 0, fmt.Errorf("unknown filter %q (want all, outgoing or incoming)", raw)
	}
}
