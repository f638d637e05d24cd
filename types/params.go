package types

const (
	// DefaultFeeRateBps is 0.5%
	DefaultFeeRateBps uint16 = 50
	// MaxFeeRateBps is 10%
	MaxFeeRateBps uint16 = 1000
	// BpsDenominator is the number of basis points in one whole
	BpsDenominator = 10000
)

// Params is a read-only snapshot of the global ledger parameters
type Params struct {
	Owner        string `json:"owner"`
	FeeRateBps   uint16 `json:"fee_rate_bps"`
	NextCircleID uint64 `json:"next_circle_id"`
	NextTxID     uint64 `json:"next_tx_id"`
	Height       uint64 `json:"height"`
	StateHash    string `json:"state_hash"` // hex
}
