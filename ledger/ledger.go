package ledger

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/errors"
	"github.com/mezonai/circlepay/events"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/monitoring"
	"github.com/mezonai/circlepay/security/validation"
	"github.com/mezonai/circlepay/store"
	"github.com/mezonai/circlepay/stringutil"
	"github.com/mezonai/circlepay/types"
)

// Operation names used in logs, metrics and events
const (
	OpInitState       = "init_state"
	OpRegister        = "register"
	OpDeposit         = "deposit"
	OpPay             = "pay"
	OpManualSave      = "manual_save"
	OpWithdrawSavings = "withdraw_savings"
	OpSetAutoSave     = "set_auto_save_percent"
	OpCreateCircle    = "create_circle"
	OpJoinCircle      = "join_circle"
	OpContribute      = "contribute"
	OpSetFeeRate      = "set_fee_rate"
	OpAdvanceHeight   = "advance_height"
	OpSetHeight       = "set_height"
)

// Ledger is the single-writer state machine over accounts, circles and the
// transaction log. Every mutating method holds the write lock for its whole
// load, validate, commit cycle and writes all touched records in one batch.
type Ledger struct {
	mu        sync.RWMutex
	accounts  store.AccountStore
	circles   store.CircleStore
	txs       store.TxStore
	meta      store.StateMetaStore
	txManager *db.DBTxManager
	eventBus  *events.EventBus
}

// NewLedger wires a ledger over the given stores. eventBus may be nil.
func NewLedger(stores *store.Stores, eventBus *events.EventBus) *Ledger {
	return &Ledger{
		accounts:  stores.Accounts,
		circles:   stores.Circles,
		txs:       stores.Txs,
		meta:      stores.Meta,
		txManager: db.NewDBTxManager(stores.Provider),
		eventBus:  eventBus,
	}
}

// changeSet collects every record an operation writes
type changeSet struct {
	params      *types.Params
	accounts    []*types.Account
	circles     []*types.Circle
	memberships []*types.Membership
	tx          *types.Transaction
}

// appendTx assigns the next log id and attaches the entry to the change set
func (cs *changeSet) appendTx(kind types.TxKind, from, to string, amount uint64) error {
	nextID, err := checkedAdd(cs.params.NextTxID, 1)
	if err != nil {
		return err
	}
	cs.tx = &types.Transaction{
		ID:        cs.params.NextTxID,
		From:      from,
		To:        to,
		Amount:    amount,
		Kind:      kind,
		Timestamp: cs.params.Height,
	}
	cs.params.NextTxID = nextID
	return nil
}

// opStart is what a mutating operation captures before its first read
type opStart struct {
	at      time.Time
	version uint64
	err     error
}

// begin reads the commit version before the operation loads anything else.
// A read failure is reported by commit so that validation errors keep their
// precedence.
func (l *Ledger) begin() opStart {
	version, err := l.meta.Version()
	return opStart{at: time.Now(), version: version, err: err}
}

// commit folds the change set into the state hash and writes it in one batch.
// The batch is guarded on the commit version read by begin, so a concurrent
// writer sharing the backend turns this commit into ErrConflict instead of
// overwriting its result.
func (l *Ledger) commit(op, caller string, start opStart, cs *changeSet) error {
	if start.err != nil {
		return start.err
	}
	stateHash, err := combineStateHash(cs.params.StateHash, computeDeltaHash(cs))
	if err != nil {
		return fmt.Errorf("failed to fold state hash: %w", err)
	}
	cs.params.StateHash = stateHash

	err = l.txManager.WithBatch(func(batch db.DatabaseBatch) error {
		if len(cs.accounts) > 0 {
			if err := l.accounts.StageInBatch(batch, cs.accounts...); err != nil {
				return err
			}
		}
		for _, c := range cs.circles {
			if err := l.circles.StageCircle(batch, c); err != nil {
				return err
			}
		}
		for _, m := range cs.memberships {
			if err := l.circles.StageMembership(batch, m); err != nil {
				return err
			}
		}
		if cs.tx != nil {
			if err := l.txs.StageInBatch(batch, cs.tx); err != nil {
				return err
			}
		}
		l.meta.StageVersionBump(batch, start.version)
		return l.meta.StageInBatch(batch, cs.params)
	})
	if stderrors.Is(err, db.ErrWriteConflict) {
		return errors.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", op, err)
	}

	var txID uint64
	if cs.tx != nil {
		txID = cs.tx.ID
	}
	monitoring.RecordCommittedOp(op, time.Since(start.at))
	monitoring.SetLedgerHeight(cs.params.Height)
	monitoring.SetFeeRate(cs.params.FeeRateBps)
	monitoring.SetTxLogSize(cs.params.NextTxID - 1)
	logx.Info("LEDGER", fmt.Sprintf("Committed %s | caller=%s | tx_id=%d | height=%d | state_hash=%s",
		op, stringutil.ShortenLog(caller), txID, cs.params.Height, stringutil.ShortenLog(stateHash)))
	if l.eventBus != nil {
		l.eventBus.Publish(events.NewOperationCommitted(op, caller, txID, cs.params.Height, stateHash))
	}
	return nil
}

// reject records a failed operation and hands err back to the caller
func (l *Ledger) reject(op, caller string, err error) error {
	code, _ := errors.CodeOf(err)
	monitoring.RecordRejectedOp(op, code.String())
	if code.Internal() {
		logx.Error("LEDGER", fmt.Sprintf("Aborted %s | caller=%s | err=%v", op, stringutil.ShortenLog(caller), err))
	} else {
		logx.Warn("LEDGER", fmt.Sprintf("Rejected %s | caller=%s | reason=%s", op, stringutil.ShortenLog(caller), code))
	}
	if l.eventBus != nil {
		l.eventBus.Publish(events.NewOperationRejected(op, caller, code, err.Error()))
	}
	return err
}

func (l *Ledger) loadAccount(identity string) (*types.Account, error) {
	acc, err := l.accounts.GetByIdentity(identity)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, errors.ErrUserNotFound
	}
	return acc, nil
}

func (l *Ledger) loadActiveCircle(circleID uint64) (*types.Circle, error) {
	circle, err := l.circles.GetCircle(circleID)
	if err != nil {
		return nil, err
	}
	if circle == nil || !circle.Active {
		return nil, errors.ErrCircleNotFound
	}
	return circle, nil
}

// InitState fixes the owner, the starting fee rate and the starting height.
// It returns true when this call performed the initialization and false when
// the ledger was already initialized by the same owner. A different owner is
// rejected with NotOwner.
func (l *Ledger) InitState(owner string, feeRateBps uint16, height uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	if owner == "" {
		return false, l.reject(OpInitState, owner, errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf(errors.ErrMsgFieldRequired, "owner")))
	}
	params, err := l.meta.Load()
	if err != nil {
		return false, l.reject(OpInitState, owner, err)
	}
	if params.Owner != "" {
		if params.Owner != owner {
			return false, l.reject(OpInitState, owner, errors.ErrNotOwner)
		}
		return false, nil
	}
	if feeRateBps > types.MaxFeeRateBps {
		return false, l.reject(OpInitState, owner, errors.ErrInvalidAmount)
	}
	if height < params.Height {
		return false, l.reject(OpInitState, owner, errors.ErrHeightRegression)
	}

	params.Owner = owner
	params.FeeRateBps = feeRateBps
	params.Height = height
	if err := l.commit(OpInitState, owner, start, &changeSet{params: params}); err != nil {
		return false, l.reject(OpInitState, owner, err)
	}
	return true, nil
}

// Register creates an account for identity if none exists. It returns false,
// without touching the stored account, when one already exists.
func (l *Ledger) Register(identity, contactInfo string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	contactInfo, err := validation.NormalizeBoundedText(validation.ContactInfoField, contactInfo, types.MaxContactInfoBytes)
	if err != nil {
		return false, l.reject(OpRegister, identity, err)
	}
	existed, err := l.accounts.ExistsByIdentity(identity)
	if err != nil {
		return false, l.reject(OpRegister, identity, err)
	}
	if existed {
		logx.Debug("LEDGER", fmt.Sprintf("Account already registered | identity=%s", stringutil.ShortenLog(identity)))
		return false, nil
	}
	params, err := l.meta.Load()
	if err != nil {
		return false, l.reject(OpRegister, identity, err)
	}

	cs := &changeSet{
		params:   params,
		accounts: []*types.Account{types.NewAccount(identity, contactInfo, params.Height)},
	}
	if err := l.commit(OpRegister, identity, start, cs); err != nil {
		return false, l.reject(OpRegister, identity, err)
	}
	return true, nil
}

// Deposit credits amount to the spendable balance and returns amount
func (l *Ledger) Deposit(identity string, amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	acc, err := l.loadAccount(identity)
	if err != nil {
		return 0, l.reject(OpDeposit, identity, err)
	}
	if amount == 0 {
		return 0, l.reject(OpDeposit, identity, errors.ErrInvalidAmount)
	}
	acc.SpendableBalance, err = checkedAdd(acc.SpendableBalance, amount)
	if err != nil {
		return 0, l.reject(OpDeposit, identity, err)
	}
	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpDeposit, identity, err)
	}

	if err := l.commit(OpDeposit, identity, start, &changeSet{params: params, accounts: []*types.Account{acc}}); err != nil {
		return 0, l.reject(OpDeposit, identity, err)
	}
	return amount, nil
}

// Pay moves amount from sender to recipient. The sender also pays the platform
// fee, which is not credited anywhere, and has the auto-save skim moved from
// spendable into savings. Returns amount.
func (l *Ledger) Pay(sender, recipient string, amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	loaded, err := l.accounts.GetBatch([]string{sender, recipient})
	if err != nil {
		return 0, l.reject(OpPay, sender, err)
	}
	from := loaded[sender]
	if from == nil {
		return 0, l.reject(OpPay, sender, errors.ErrUserNotFound)
	}
	to := loaded[recipient]
	if to == nil {
		return 0, l.reject(OpPay, sender, errors.ErrUserNotFound)
	}
	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpPay, sender, err)
	}

	fee, err := mulDiv(amount, uint64(params.FeeRateBps), types.BpsDenominator)
	if err != nil {
		return 0, l.reject(OpPay, sender, err)
	}
	autoSave, err := mulDiv(amount, uint64(from.AutoSavePercent), 100)
	if err != nil {
		return 0, l.reject(OpPay, sender, err)
	}
	if !covers(from.SpendableBalance, amount, fee, autoSave) {
		return 0, l.reject(OpPay, sender, errors.ErrInsufficientBalance)
	}

	// covers() bounds the sum by the balance, so it cannot wrap
	if from.SpendableBalance, err = checkedSub(from.SpendableBalance, amount+fee+autoSave); err != nil {
		return 0, l.reject(OpPay, sender, err)
	}
	if from.SavingsBalance, err = checkedAdd(from.SavingsBalance, autoSave); err != nil {
		return 0, l.reject(OpPay, sender, err)
	}
	touched := []*types.Account{from}
	if sender == recipient {
		to = from
	} else {
		touched = append(touched, to)
	}
	if to.SpendableBalance, err = checkedAdd(to.SpendableBalance, amount); err != nil {
		return 0, l.reject(OpPay, sender, err)
	}

	cs := &changeSet{params: params, accounts: touched}
	if err := cs.appendTx(types.TxKindPayment, sender, recipient, amount); err != nil {
		return 0, l.reject(OpPay, sender, err)
	}
	if err := l.commit(OpPay, sender, start, cs); err != nil {
		return 0, l.reject(OpPay, sender, err)
	}
	logx.Debug("LEDGER", fmt.Sprintf("Payment breakdown | tx_id=%d | amount=%d | fee=%d | auto_save=%d", cs.tx.ID, amount, fee, autoSave))
	return amount, nil
}

// ManualSave moves amount from spendable into savings and logs it
func (l *Ledger) ManualSave(identity string, amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	acc, err := l.loadAccount(identity)
	if err != nil {
		return 0, l.reject(OpManualSave, identity, err)
	}
	if acc.SpendableBalance, err = checkedSub(acc.SpendableBalance, amount); err != nil {
		return 0, l.reject(OpManualSave, identity, err)
	}
	if amount == 0 {
		return 0, l.reject(OpManualSave, identity, errors.ErrInvalidAmount)
	}
	if acc.SavingsBalance, err = checkedAdd(acc.SavingsBalance, amount); err != nil {
		return 0, l.reject(OpManualSave, identity, err)
	}
	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpManualSave, identity, err)
	}

	cs := &changeSet{params: params, accounts: []*types.Account{acc}}
	if err := cs.appendTx(types.TxKindSavings, identity, identity, amount); err != nil {
		return 0, l.reject(OpManualSave, identity, err)
	}
	if err := l.commit(OpManualSave, identity, start, cs); err != nil {
		return 0, l.reject(OpManualSave, identity, err)
	}
	return amount, nil
}

// WithdrawSavings moves amount from savings back to spendable. Withdrawals do
// not appear in the transaction log.
func (l *Ledger) WithdrawSavings(identity string, amount uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	acc, err := l.loadAccount(identity)
	if err != nil {
		return 0, l.reject(OpWithdrawSavings, identity, err)
	}
	if acc.SavingsBalance, err = checkedSub(acc.SavingsBalance, amount); err != nil {
		return 0, l.reject(OpWithdrawSavings, identity, err)
	}
	if amount == 0 {
		return 0, l.reject(OpWithdrawSavings, identity, errors.ErrInvalidAmount)
	}
	if acc.SpendableBalance, err = checkedAdd(acc.SpendableBalance, amount); err != nil {
		return 0, l.reject(OpWithdrawSavings, identity, err)
	}
	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpWithdrawSavings, identity, err)
	}

	if err := l.commit(OpWithdrawSavings, identity, start, &changeSet{params: params, accounts: []*types.Account{acc}}); err != nil {
		return 0, l.reject(OpWithdrawSavings, identity, err)
	}
	return amount, nil
}

// SetAutoSavePercent sets the share of every later payment that is skimmed
// into the payer's savings. Returns the new percent.
func (l *Ledger) SetAutoSavePercent(identity string, percent uint8) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	acc, err := l.loadAccount(identity)
	if err != nil {
		return 0, l.reject(OpSetAutoSave, identity, err)
	}
	if percent > types.MaxAutoSavePercent {
		return 0, l.reject(OpSetAutoSave, identity, errors.ErrInvalidAmount)
	}
	acc.AutoSavePercent = percent
	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpSetAutoSave, identity, err)
	}

	if err := l.commit(OpSetAutoSave, identity, start, &changeSet{params: params, accounts: []*types.Account{acc}}); err != nil {
		return 0, l.reject(OpSetAutoSave, identity, err)
	}
	return percent, nil
}

// CreateCircle opens a new circle with creator as its first member. The
// creator does not need an account.
func (l *Ledger) CreateCircle(creator, name string, targetAmount uint64, maxMembers uint32, contributionAmount uint64, payoutFrequency uint32) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	name, err := validation.NormalizeBoundedText(validation.CircleNameField, name, types.MaxCircleNameBytes)
	if err != nil {
		return 0, l.reject(OpCreateCircle, creator, err)
	}
	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpCreateCircle, creator, err)
	}
	nextPayout, err := checkedAdd(params.Height, uint64(payoutFrequency))
	if err != nil {
		return 0, l.reject(OpCreateCircle, creator, err)
	}
	circleID := params.NextCircleID
	if params.NextCircleID, err = checkedAdd(circleID, 1); err != nil {
		return 0, l.reject(OpCreateCircle, creator, err)
	}

	circle := &types.Circle{
		ID:                 circleID,
		Name:               name,
		Creator:            creator,
		TargetAmount:       targetAmount,
		MemberCount:        1,
		MaxMembers:         maxMembers,
		ContributionAmount: contributionAmount,
		PayoutFrequency:    payoutFrequency,
		NextPayout:         nextPayout,
		Active:             true,
	}
	membership := &types.Membership{
		CircleID: circleID,
		Member:   creator,
		JoinedAt: params.Height,
	}
	cs := &changeSet{
		params:      params,
		circles:     []*types.Circle{circle},
		memberships: []*types.Membership{membership},
	}
	if err := l.commit(OpCreateCircle, creator, start, cs); err != nil {
		return 0, l.reject(OpCreateCircle, creator, err)
	}
	return circleID, nil
}

// JoinCircle adds member to an active circle. Joins are not logged.
func (l *Ledger) JoinCircle(circleID uint64, member string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	circle, err := l.loadActiveCircle(circleID)
	if err != nil {
		return l.reject(OpJoinCircle, member, err)
	}
	if circle.IsFull() {
		return l.reject(OpJoinCircle, member, errors.ErrCircleFull)
	}
	existing, err := l.circles.GetMembership(types.MembershipKey{CircleID: circleID, Member: member})
	if err != nil {
		return l.reject(OpJoinCircle, member, err)
	}
	if existing != nil {
		return l.reject(OpJoinCircle, member, errors.ErrAlreadyMember)
	}
	params, err := l.meta.Load()
	if err != nil {
		return l.reject(OpJoinCircle, member, err)
	}

	circle.MemberCount++
	cs := &changeSet{
		params:  params,
		circles: []*types.Circle{circle},
		memberships: []*types.Membership{{
			CircleID: circleID,
			Member:   member,
			JoinedAt: params.Height,
		}},
	}
	if err := l.commit(OpJoinCircle, member, start, cs); err != nil {
		return l.reject(OpJoinCircle, member, err)
	}
	return nil
}

// Contribute debits the circle's fixed contribution from member and credits it
// to the pool. The log entry runs from member to the circle creator.
func (l *Ledger) Contribute(circleID uint64, member string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	circle, err := l.loadActiveCircle(circleID)
	if err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	membership, err := l.circles.GetMembership(types.MembershipKey{CircleID: circleID, Member: member})
	if err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	if membership == nil {
		return 0, l.reject(OpContribute, member, errors.ErrNotMember)
	}
	acc, err := l.loadAccount(member)
	if err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	amount := circle.ContributionAmount
	if acc.SpendableBalance, err = checkedSub(acc.SpendableBalance, amount); err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpContribute, member, err)
	}

	if circle.CurrentAmount, err = checkedAdd(circle.CurrentAmount, amount); err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	if membership.TotalContributed, err = checkedAdd(membership.TotalContributed, amount); err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	membership.LastContribution = params.Height

	cs := &changeSet{
		params:      params,
		accounts:    []*types.Account{acc},
		circles:     []*types.Circle{circle},
		memberships: []*types.Membership{membership},
	}
	if err := cs.appendTx(types.TxKindCircleContribution, member, circle.Creator, amount); err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	if err := l.commit(OpContribute, member, start, cs); err != nil {
		return 0, l.reject(OpContribute, member, err)
	}
	return amount, nil
}

// SetFeeRate changes the platform fee. Only the owner may call it; an
// uninitialized ledger has no owner and rejects everyone.
func (l *Ledger) SetFeeRate(caller string, feeRateBps uint16) (uint16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpSetFeeRate, caller, err)
	}
	if params.Owner == "" || caller != params.Owner {
		return 0, l.reject(OpSetFeeRate, caller, errors.ErrNotOwner)
	}
	if feeRateBps > types.MaxFeeRateBps {
		return 0, l.reject(OpSetFeeRate, caller, errors.ErrInvalidAmount)
	}
	params.FeeRateBps = feeRateBps

	if err := l.commit(OpSetFeeRate, caller, start, &changeSet{params: params}); err != nil {
		return 0, l.reject(OpSetFeeRate, caller, err)
	}
	return feeRateBps, nil
}

// AdvanceHeight is the explicit clock step. It returns the new height.
func (l *Ledger) AdvanceHeight(delta uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpAdvanceHeight, "", err)
	}
	if params.Height, err = checkedAdd(params.Height, delta); err != nil {
		return 0, l.reject(OpAdvanceHeight, "", err)
	}
	if err := l.commit(OpAdvanceHeight, "", start, &changeSet{params: params}); err != nil {
		return 0, l.reject(OpAdvanceHeight, "", err)
	}
	return params.Height, nil
}

// SetHeight moves the clock to height, which must not be below the current one
func (l *Ledger) SetHeight(height uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := l.begin()

	params, err := l.meta.Load()
	if err != nil {
		return 0, l.reject(OpSetHeight, "", err)
	}
	if height < params.Height {
		return 0, l.reject(OpSetHeight, "", errors.ErrHeightRegression)
	}
	params.Height = height
	if err := l.commit(OpSetHeight, "", start, &changeSet{params: params}); err != nil {
		return 0, l.reject(OpSetHeight, "", err)
	}
	return height, nil
}
