package ledger

import (
	"github.com/mezonai/circlepay/monitoring"
	"github.com/mezonai/circlepay/types"
)

const (
	// DefaultListLimit applies when a caller asks for limit 0
	DefaultListLimit = 20
	MaxListLimit     = 100
	// txScanPage is how many log entries TransactionsOf reads per store round trip
	txScanPage = 256
)

// GetAccount returns the account for identity, or nil if it is not registered
func (l *Ledger) GetAccount(identity string) (*types.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts.GetByIdentity(identity)
}

// GetCircle returns the circle, or nil if id was never allocated
func (l *Ledger) GetCircle(circleID uint64) (*types.Circle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.circles.GetCircle(circleID)
}

func (l *Ledger) GetMembership(circleID uint64, member string) (*types.Membership, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.circles.GetMembership(types.MembershipKey{CircleID: circleID, Member: member})
}

// ListMembers returns the memberships of a circle in join order
func (l *Ledger) ListMembers(circleID uint64) ([]*types.Membership, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.circles.ListMembers(circleID)
}

// GetTransaction returns the log entry with id, or nil if it does not exist
func (l *Ledger) GetTransaction(id uint64) (*types.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.txs.GetByID(id)
}

// ListTransactions returns up to limit log entries in id order, skipping the
// first offset entries.
func (l *Ledger) ListTransactions(offset, limit uint64) ([]*types.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	params, err := l.meta.Load()
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	total := params.NextTxID - 1
	if offset >= total {
		return []*types.Transaction{}, nil
	}
	from := offset + 1
	to := min(from+limit, params.NextTxID)
	return l.txs.GetRange(from, to)
}

// TransactionsOf returns the total number of entries involving identity that
// match filter, plus one page of them in id order.
func (l *Ledger) TransactionsOf(identity string, limit, offset uint32, filter types.TxFilter) (uint32, []*types.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	params, err := l.meta.Load()
	if err != nil {
		return 0, nil, err
	}
	limit = uint32(clampLimit(uint64(limit)))

	var total uint32
	page := make([]*types.Transaction, 0, limit)
	for from := uint64(1); from < params.NextTxID; from += txScanPage {
		to := min(from+txScanPage, params.NextTxID)
		batch, err := l.txs.GetRange(from, to)
		if err != nil {
			return 0, nil, err
		}
		for _, tx := range batch {
			if !filter.Matches(tx, identity) {
				continue
			}
			if total >= offset && uint32(len(page)) < limit {
				page = append(page, tx)
			}
			total++
		}
	}
	return total, page, nil
}

// Params returns a snapshot of the global parameters
func (l *Ledger) Params() (*types.Params, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meta.Load()
}

func (l *Ledger) Height() (uint64, error) {
	p, err := l.Params()
	if err != nil {
		return 0, err
	}
	return p.Height, nil
}

// SyncGauges loads the stored parameters into the ledger gauges. Commits keep
// them current afterwards; a freshly started process calls this once.
func (l *Ledger) SyncGauges() error {
	p, err := l.Params()
	if err != nil {
		return err
	}
	monitoring.SetLedgerHeight(p.Height)
	monitoring.SetFeeRate(p.FeeRateBps)
	monitoring.SetTxLogSize(p.NextTxID - 1)
	return nil
}

func clampLimit(limit uint64) uint64 {
	if limit == 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
