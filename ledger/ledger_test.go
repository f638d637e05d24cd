package ledger

import (
	stderrors "errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mezonai/circlepay/db"
	"github.com/mezonai/circlepay/errors"
	"github.com/mezonai/circlepay/events"
	"github.com/mezonai/circlepay/store"
	"github.com/mezonai/circlepay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "owner"

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := newUninitializedLedger(t)
	created, err := l.InitState(testOwner, types.DefaultFeeRateBps, 0)
	require.NoError(t, err)
	require.True(t, created)
	return l
}

func newUninitializedLedger(t *testing.T) *Ledger {
	t.Helper()
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	stores, err := store.NewStores(provider)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return NewLedger(stores, nil)
}

func registerFunded(t *testing.T, l *Ledger, identity string, amount uint64) {
	t.Helper()
	_, err := l.Register(identity, "")
	require.NoError(t, err)
	if amount > 0 {
		_, err = l.Deposit(identity, amount)
		require.NoError(t, err)
	}
}

func mustAccount(t *testing.T, l *Ledger, identity string) *types.Account {
	t.Helper()
	acc, err := l.GetAccount(identity)
	require.NoError(t, err)
	require.NotNil(t, acc, "account %s", identity)
	return acc
}

func mustParams(t *testing.T, l *Ledger) *types.Params {
	t.Helper()
	p, err := l.Params()
	require.NoError(t, err)
	return p
}

func TestScenarioPayWithSkim(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "alice", 1000)
	registerFunded(t, l, "bob", 0)

	assert.Equal(t, uint64(1000), mustAccount(t, l, "alice").SpendableBalance)

	got, err := l.Pay("alice", "bob", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got)

	alice := mustAccount(t, l, "alice")
	assert.Equal(t, uint64(890), alice.SpendableBalance)
	assert.Equal(t, uint64(10), alice.SavingsBalance)
	assert.Equal(t, uint64(100), mustAccount(t, l, "bob").SpendableBalance)

	tx, err := l.GetTransaction(1)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, types.Transaction{ID: 1, From: "alice", To: "bob", Amount: 100, Kind: types.TxKindPayment}, *tx)
}

func TestScenarioManualSaveZero(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "alice", 1000)
	before := mustParams(t, l)

	_, err := l.ManualSave("alice", 0)
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	assert.Equal(t, uint64(1000), mustAccount(t, l, "alice").SpendableBalance)
	assert.Equal(t, before, mustParams(t, l))
}

func TestScenarioCircleFull(t *testing.T) {
	l := newTestLedger(t)

	id, err := l.CreateCircle("alice", "family", 1000, 2, 100, 10)
	require.NoError(t, err)
	circle, err := l.GetCircle(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), circle.MemberCount)

	require.NoError(t, l.JoinCircle(id, "bob"))
	circle, err = l.GetCircle(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), circle.MemberCount)

	assert.ErrorIs(t, l.JoinCircle(id, "charlie"), errors.ErrCircleFull)
	circle, err = l.GetCircle(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), circle.MemberCount)
}

func TestScenarioContributeNonMember(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "dave", 1000)
	id, err := l.CreateCircle("alice", "family", 1000, 5, 100, 10)
	require.NoError(t, err)

	_, err = l.Contribute(id, "dave")
	assert.ErrorIs(t, err, errors.ErrNotMember)
	assert.Equal(t, uint64(1000), mustAccount(t, l, "dave").SpendableBalance)
}

func TestScenarioSetFeeRateNotOwner(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.SetFeeRate("mallory", 100)
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	assert.Equal(t, types.DefaultFeeRateBps, mustParams(t, l).FeeRateBps)
}

func TestRegisterIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AdvanceHeight(7)
	require.NoError(t, err)

	created, err := l.Register("alice", "alice@mail")
	require.NoError(t, err)
	assert.True(t, created)

	_, err = l.AdvanceHeight(3)
	require.NoError(t, err)

	created, err = l.Register("alice", "other")
	require.NoError(t, err)
	assert.False(t, created)

	acc := mustAccount(t, l, "alice")
	assert.Equal(t, "alice@mail", acc.ContactInfo)
	assert.Equal(t, uint64(7), acc.CreatedAt)
	assert.Equal(t, types.DefaultAutoSavePercent, acc.AutoSavePercent)
	assert.Zero(t, acc.SpendableBalance)
	assert.Zero(t, acc.SavingsBalance)
}

func TestRegisterRejectsLongContactInfo(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Register("alice", strings.Repeat("x", types.MaxContactInfoBytes+1))
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeInvalidInput, code)

	acc, err := l.GetAccount("alice")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestDeposit(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Deposit("ghost", 10)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	// existence is checked before amount
	_, err = l.Deposit("ghost", 0)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	registerFunded(t, l, "alice", 0)
	_, err = l.Deposit("alice", 0)
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	got, err := l.Deposit("alice", 250)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), got)
	assert.Equal(t, uint64(250), mustAccount(t, l, "alice").SpendableBalance)

	assert.Equal(t, uint64(1), mustParams(t, l).NextTxID, "deposits are not logged")
}

func TestDepositOverflowAborts(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "alice", math.MaxUint64)

	_, err := l.Deposit("alice", 1)
	assert.ErrorIs(t, err, errors.ErrOverflow)
	assert.Equal(t, uint64(math.MaxUint64), mustAccount(t, l, "alice").SpendableBalance)
}

func TestPayErrorPrecedence(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "alice", 100)
	registerFunded(t, l, "bob", 0)

	tests := []struct {
		name      string
		sender    string
		recipient string
		amount    uint64
		want      error
	}{
		{name: "unknown sender and recipient", sender: "ghost", recipient: "phantom", amount: 1, want: errors.ErrUserNotFound},
		{name: "unknown sender", sender: "ghost", recipient: "bob", amount: 1, want: errors.ErrUserNotFound},
		{name: "unknown recipient", sender: "alice", recipient: "ghost", amount: 1_000_000, want: errors.ErrUserNotFound},
		{name: "broke sender", sender: "bob", recipient: "alice", amount: 1, want: errors.ErrInsufficientBalance},
		{name: "amount fits but skim does not", sender: "alice", recipient: "bob", amount: 100, want: errors.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Pay(tt.sender, tt.recipient, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, uint64(100), mustAccount(t, l, "alice").SpendableBalance)
	assert.Zero(t, mustAccount(t, l, "bob").SpendableBalance)
}

func TestPayConservation(t *testing.T) {
	tests := []struct {
		name        string
		feeBps      uint16
		autoSave    uint8
		amount      uint64
		wantFee     uint64
		wantSkim    uint64
		startingBal uint64
	}{
		{name: "small amount rounds fee down", feeBps: 50, autoSave: 10, amount: 199, wantFee: 0, wantSkim: 19, startingBal: 1000},
		{name: "fee kicks in", feeBps: 50, autoSave: 10, amount: 10000, wantFee: 50, wantSkim: 1000, startingBal: 20000},
		{name: "max fee no skim", feeBps: 1000, autoSave: 0, amount: 777, wantFee: 77, wantSkim: 0, startingBal: 1000},
		{name: "max skim", feeBps: 0, autoSave: 50, amount: 301, wantFee: 0, wantSkim: 150, startingBal: 451},
		{name: "large amount no intermediate overflow", feeBps: 1000, autoSave: 0, amount: math.MaxUint64 / 2, wantFee: (math.MaxUint64 / 2) / 10, wantSkim: 0, startingBal: math.MaxUint64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)
			_, err := l.SetFeeRate(testOwner, tt.feeBps)
			require.NoError(t, err)
			registerFunded(t, l, "alice", tt.startingBal)
			registerFunded(t, l, "bob", 0)
			_, err = l.SetAutoSavePercent("alice", tt.autoSave)
			require.NoError(t, err)

			got, err := l.Pay("alice", "bob", tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, got)

			alice := mustAccount(t, l, "alice")
			bob := mustAccount(t, l, "bob")
			assert.Equal(t, tt.startingBal-tt.amount-tt.wantFee-tt.wantSkim, alice.SpendableBalance)
			assert.Equal(t, tt.wantSkim, alice.SavingsBalance)
			assert.Equal(t, tt.amount, bob.SpendableBalance)
			// the fee leaves the system
			assert.Equal(t, tt.startingBal-tt.wantFee, alice.SpendableBalance+alice.SavingsBalance+bob.SpendableBalance)
		})
	}
}

func TestPayRecipientOverflowLeavesSenderUntouched(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "alice", 1000)
	registerFunded(t, l, "whale", math.MaxUint64)

	_, err := l.Pay("alice", "whale", 1)
	assert.ErrorIs(t, err, errors.ErrOverflow)

	alice := mustAccount(t, l, "alice")
	assert.Equal(t, uint64(1000), alice.SpendableBalance)
	assert.Zero(t, alice.SavingsBalance)
	assert.Equal(t, uint64(1), mustParams(t, l).NextTxID)
}

func TestPaySelfAndZero(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "alice", 1000)

	_, err := l.Pay("alice", "alice", 100)
	require.NoError(t, err)
	alice := mustAccount(t, l, "alice")
	assert.Equal(t, uint64(990), alice.SpendableBalance)
	assert.Equal(t, uint64(10), alice.SavingsBalance)

	registerFunded(t, l, "bob", 0)
	got, err := l.Pay("bob", "alice", 0)
	require.NoError(t, err)
	assert.Zero(t, got)

	tx, err := l.GetTransaction(2)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "bob", tx.From)
	assert.Zero(t, tx.Amount)
}

func TestManualSaveAndWithdraw(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.ManualSave("ghost", 0)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	registerFunded(t, l, "alice", 100)

	// balance is checked before the zero amount
	_, err = l.ManualSave("alice", 101)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

	got, err := l.ManualSave("alice", 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), got)
	alice := mustAccount(t, l, "alice")
	assert.Equal(t, uint64(60), alice.SpendableBalance)
	assert.Equal(t, uint64(40), alice.SavingsBalance)

	tx, err := l.GetTransaction(1)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, types.TxKindSavings, tx.Kind)
	assert.Equal(t, "alice", tx.From)
	assert.Equal(t, "alice", tx.To)

	_, err = l.WithdrawSavings("ghost", 1)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
	_, err = l.WithdrawSavings("alice", 41)
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)
	_, err = l.WithdrawSavings("alice", 0)
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	got, err = l.WithdrawSavings("alice", 15)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), got)
	alice = mustAccount(t, l, "alice")
	assert.Equal(t, uint64(75), alice.SpendableBalance)
	assert.Equal(t, uint64(25), alice.SavingsBalance)

	assert.Equal(t, uint64(2), mustParams(t, l).NextTxID, "withdrawals are not logged")
}

func TestSetAutoSavePercent(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.SetAutoSavePercent("ghost", 60)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	registerFunded(t, l, "alice", 0)
	_, err = l.SetAutoSavePercent("alice", types.MaxAutoSavePercent+1)
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	got, err := l.SetAutoSavePercent("alice", types.MaxAutoSavePercent)
	require.NoError(t, err)
	assert.Equal(t, types.MaxAutoSavePercent, got)

	got, err = l.SetAutoSavePercent("alice", 0)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Zero(t, mustAccount(t, l, "alice").AutoSavePercent)
}

func TestCreateCircle(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.SetHeight(100)
	require.NoError(t, err)

	first, err := l.CreateCircle("unregistered", "pool", 5000, 4, 250, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)

	second, err := l.CreateCircle("bob", "", 0, 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second)

	circle, err := l.GetCircle(first)
	require.NoError(t, err)
	assert.Equal(t, &types.Circle{
		ID:                 1,
		Name:               "pool",
		Creator:            "unregistered",
		TargetAmount:       5000,
		MemberCount:        1,
		MaxMembers:         4,
		ContributionAmount: 250,
		PayoutFrequency:    30,
		NextPayout:         130,
		Active:             true,
	}, circle)

	m, err := l.GetMembership(first, "unregistered")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, uint64(100), m.JoinedAt)
	assert.Zero(t, m.TotalContributed)
	assert.Zero(t, m.LastContribution)

	acc, err := l.GetAccount("unregistered")
	require.NoError(t, err)
	assert.Nil(t, acc, "creating a circle must not register the creator")

	_, err = l.CreateCircle("bob", strings.Repeat("n", types.MaxCircleNameBytes+1), 0, 1, 0, 0)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeInvalidInput, code)

	assert.Equal(t, uint64(3), mustParams(t, l).NextCircleID)
}

func TestJoinCircleErrorPrecedence(t *testing.T) {
	l := newTestLedger(t)

	assert.ErrorIs(t, l.JoinCircle(42, "bob"), errors.ErrCircleNotFound)

	full, err := l.CreateCircle("alice", "solo", 0, 1, 10, 1)
	require.NoError(t, err)
	// capacity is checked before membership
	assert.ErrorIs(t, l.JoinCircle(full, "alice"), errors.ErrCircleFull)

	open, err := l.CreateCircle("alice", "open", 0, 3, 10, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, l.JoinCircle(open, "alice"), errors.ErrAlreadyMember)

	require.NoError(t, l.JoinCircle(open, "bob"))
	assert.ErrorIs(t, l.JoinCircle(open, "bob"), errors.ErrAlreadyMember)

	circle, err := l.GetCircle(open)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), circle.MemberCount)

	members, err := l.ListMembers(open)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Member)
	assert.Equal(t, "bob", members[1].Member)
}

func TestContribute(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Contribute(1, "bob")
	assert.ErrorIs(t, err, errors.ErrCircleNotFound)

	id, err := l.CreateCircle("alice", "family", 1000, 3, 100, 5)
	require.NoError(t, err)

	// alice is a member but has no account
	_, err = l.Contribute(id, "alice")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	registerFunded(t, l, "bob", 150)
	_, err = l.Contribute(id, "bob")
	assert.ErrorIs(t, err, errors.ErrNotMember)

	require.NoError(t, l.JoinCircle(id, "bob"))
	_, err = l.AdvanceHeight(12)
	require.NoError(t, err)

	got, err := l.Contribute(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got)

	_, err = l.Contribute(id, "bob")
	assert.ErrorIs(t, err, errors.ErrInsufficientBalance)

	assert.Equal(t, uint64(50), mustAccount(t, l, "bob").SpendableBalance)
	circle, err := l.GetCircle(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), circle.CurrentAmount)

	m, err := l.GetMembership(id, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), m.TotalContributed)
	assert.Equal(t, uint64(12), m.LastContribution)

	tx, err := l.GetTransaction(1)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, types.Transaction{ID: 1, From: "bob", To: "alice", Amount: 100, Kind: types.TxKindCircleContribution, Timestamp: 12}, *tx)
}

func TestSetFeeRate(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.SetFeeRate(testOwner, types.MaxFeeRateBps+1)
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	// ownership is checked before the bound
	_, err = l.SetFeeRate("mallory", types.MaxFeeRateBps+1)
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	got, err := l.SetFeeRate(testOwner, types.MaxFeeRateBps)
	require.NoError(t, err)
	assert.Equal(t, types.MaxFeeRateBps, got)

	assert.Equal(t, types.MaxFeeRateBps, mustParams(t, l).FeeRateBps)
}

func TestUninitializedLedgerHasNoOwner(t *testing.T) {
	l := newUninitializedLedger(t)

	_, err := l.SetFeeRate("", 10)
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	p := mustParams(t, l)
	assert.Equal(t, types.DefaultFeeRateBps, p.FeeRateBps)
	assert.Equal(t, uint64(1), p.NextCircleID)
	assert.Equal(t, uint64(1), p.NextTxID)
}

func TestInitStateOnce(t *testing.T) {
	l := newUninitializedLedger(t)

	_, err := l.InitState("", 50, 0)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeInvalidInput, code)

	_, err = l.InitState(testOwner, types.MaxFeeRateBps+1, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidAmount)

	created, err := l.InitState(testOwner, 25, 9)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = l.InitState(testOwner, 80, 20)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = l.InitState("mallory", 80, 20)
	assert.ErrorIs(t, err, errors.ErrNotOwner)

	p := mustParams(t, l)
	assert.Equal(t, testOwner, p.Owner)
	assert.Equal(t, uint16(25), p.FeeRateBps)
	assert.Equal(t, uint64(9), p.Height)
}

func TestHeightControl(t *testing.T) {
	l := newTestLedger(t)

	h, err := l.AdvanceHeight(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), h)

	h, err = l.SetHeight(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), h)

	_, err = l.SetHeight(4)
	assert.ErrorIs(t, err, errors.ErrHeightRegression)

	_, err = l.SetHeight(math.MaxUint64)
	require.NoError(t, err)
	_, err = l.AdvanceHeight(1)
	assert.ErrorIs(t, err, errors.ErrOverflow)

	height, err := l.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), height)

	_, err = l.CreateCircle("alice", "late", 0, 2, 0, 1)
	assert.ErrorIs(t, err, errors.ErrOverflow, "next payout would wrap")
}

func TestLogMonotonicityAndListing(t *testing.T) {
	l := newTestLedger(t)
	registerFunded(t, l, "alice", 10_000)
	registerFunded(t, l, "bob", 10_000)
	circleID, err := l.CreateCircle("carol", "c", 0, 5, 10, 1)
	require.NoError(t, err)
	require.NoError(t, l.JoinCircle(circleID, "bob"))

	_, err = l.Pay("alice", "bob", 100)
	require.NoError(t, err)
	_, err = l.ManualSave("bob", 5)
	require.NoError(t, err)
	_, err = l.WithdrawSavings("bob", 5)
	require.NoError(t, err)
	_, err = l.Contribute(circleID, "bob")
	require.NoError(t, err)
	_, err = l.Pay("bob", "alice", 7)
	require.NoError(t, err)

	all, err := l.ListTransactions(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, tx := range all {
		assert.Equal(t, uint64(i+1), tx.ID)
	}
	assert.Equal(t, []types.TxKind{types.TxKindPayment, types.TxKindSavings, types.TxKindCircleContribution, types.TxKindPayment},
		[]types.TxKind{all[0].Kind, all[1].Kind, all[2].Kind, all[3].Kind})

	page, err := l.ListTransactions(2, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(3), page[0].ID)

	empty, err := l.ListTransactions(10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	total, txs, err := l.TransactionsOf("bob", 10, 0, types.TxFilterAll)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), total)
	assert.Len(t, txs, 4)

	total, txs, err = l.TransactionsOf("bob", 10, 0, types.TxFilterIncoming)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), total)
	assert.Equal(t, uint64(1), txs[0].ID)
	assert.Equal(t, uint64(2), txs[1].ID)

	total, txs, err = l.TransactionsOf("bob", 1, 1, types.TxFilterOutgoing)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), total)
	require.Len(t, txs, 1)
	assert.Equal(t, uint64(3), txs[0].ID)

	total, txs, err = l.TransactionsOf("carol", 10, 0, types.TxFilterIncoming)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), total)
	assert.Equal(t, types.TxKindCircleContribution, txs[0].Kind)

	total, txs, err = l.TransactionsOf("bob", 10, 50, types.TxFilterAll)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), total)
	assert.Empty(t, txs)
}

func TestStateHashTracksCommits(t *testing.T) {
	run := func(l *Ledger) {
		registerFunded(t, l, "alice", 500)
		registerFunded(t, l, "bob", 0)
		_, err := l.Pay("alice", "bob", 50)
		require.NoError(t, err)
	}
	a := newTestLedger(t)
	b := newTestLedger(t)
	run(a)
	run(b)

	hashA := mustParams(t, a).StateHash
	assert.Len(t, hashA, 64)
	assert.Equal(t, hashA, mustParams(t, b).StateHash)

	_, err := a.Pay("alice", "bob", 1_000_000)
	require.Error(t, err)
	assert.Equal(t, hashA, mustParams(t, a).StateHash, "rejected ops leave the digest alone")

	_, err = a.Deposit("bob", 1)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, mustParams(t, a).StateHash)
}

func TestEventsPublished(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	stores, err := store.NewStores(provider)
	require.NoError(t, err)
	defer stores.Close()

	bus := events.NewEventBus()
	_, ch := bus.Subscribe()
	l := NewLedger(stores, bus)

	_, err = l.InitState(testOwner, 50, 0)
	require.NoError(t, err)
	_, err = l.Deposit("ghost", 1)
	require.Error(t, err)

	next := func() events.LedgerEvent {
		select {
		case ev := <-ch:
			return ev
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
			return nil
		}
	}

	committed := next()
	assert.Equal(t, events.EventOperationCommitted, committed.Type())
	assert.Equal(t, OpInitState, committed.Op())

	rejected, ok := next().(*events.OperationRejected)
	require.True(t, ok)
	assert.Equal(t, OpDeposit, rejected.Op())
	assert.Equal(t, errors.ErrCodeUserNotFound, rejected.Code())
}

// failingProvider accepts every staged write and then fails the commit
type failingProvider struct {
	db.DatabaseProvider
}

func (p *failingProvider) Batch() db.DatabaseBatch {
	return &failingBatch{DatabaseBatch: p.DatabaseProvider.Batch()}
}

type failingBatch struct {
	db.DatabaseBatch
}

func (b *failingBatch) Write() error {
	return stderrors.New("disk on fire")
}

// slowReadProvider adds a network round trip to every read so that writers
// sharing the backend interleave their loads the way Redis or Postgres
// clients would
type slowReadProvider struct {
	db.IterableProvider
}

func (p *slowReadProvider) Get(key []byte) ([]byte, error) {
	time.Sleep(5 * time.Millisecond)
	return p.IterableProvider.Get(key)
}

func (p *slowReadProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	time.Sleep(5 * time.Millisecond)
	return p.IterableProvider.GetBatch(keys)
}

func TestWritersSharingBackendCannotDoubleSpend(t *testing.T) {
	for round := 0; round < 10; round++ {
		provider, err := db.NewMemLevelDBProvider()
		require.NoError(t, err)
		shared := &slowReadProvider{IterableProvider: provider}

		writers := make([]*Ledger, 2)
		for i := range writers {
			stores, err := store.NewStores(shared)
			require.NoError(t, err)
			t.Cleanup(func() { stores.Close() })
			writers[i] = NewLedger(stores, nil)
		}
		l := writers[0]
		_, err = l.InitState(testOwner, 0, 0)
		require.NoError(t, err)
		registerFunded(t, l, "alice", 100)
		registerFunded(t, l, "bob", 0)
		_, err = l.SetAutoSavePercent("alice", 0)
		require.NoError(t, err)
		nextTx := mustParams(t, l).NextTxID

		var wg sync.WaitGroup
		errs := make([]error, len(writers))
		for i, w := range writers {
			wg.Add(1)
			go func(i int, w *Ledger) {
				defer wg.Done()
				_, errs[i] = w.Pay("alice", "bob", 100)
			}(i, w)
		}
		wg.Wait()

		var paid int
		for _, err := range errs {
			if err == nil {
				paid++
				continue
			}
			code, _ := errors.CodeOf(err)
			assert.Contains(t, []errors.LedgerErrorCode{errors.ErrCodeConflict, errors.ErrCodeInsufficientBalance}, code, "round %d: %v", round, err)
		}
		require.Equal(t, 1, paid, "round %d: exactly one pay of the whole balance may commit", round)
		assert.Zero(t, mustAccount(t, l, "alice").SpendableBalance)
		assert.Equal(t, uint64(100), mustAccount(t, l, "bob").SpendableBalance)
		assert.Equal(t, nextTx+1, mustParams(t, l).NextTxID, "round %d: one log entry per committed pay", round)
	}
}

func TestFailedCommitMutatesNothing(t *testing.T) {
	provider, err := db.NewMemLevelDBProvider()
	require.NoError(t, err)
	healthy, err := store.NewStores(provider)
	require.NoError(t, err)
	defer healthy.Close()

	l := NewLedger(healthy, nil)
	_, err = l.InitState(testOwner, 50, 0)
	require.NoError(t, err)
	registerFunded(t, l, "alice", 1000)
	registerFunded(t, l, "bob", 0)
	before := mustParams(t, l)

	broken, err := store.NewStores(&failingProvider{DatabaseProvider: provider})
	require.NoError(t, err)
	fl := NewLedger(broken, nil)

	_, err = fl.Pay("alice", "bob", 100)
	require.Error(t, err)
	code, _ := errors.CodeOf(err)
	assert.Equal(t, errors.ErrCodeStorage, code)

	assert.Equal(t, uint64(1000), mustAccount(t, l, "alice").SpendableBalance)
	assert.Zero(t, mustAccount(t, l, "bob").SpendableBalance)
	assert.Equal(t, before, mustParams(t, l))
	tx, err := l.GetTransaction(1)
	require.NoError(t, err)
	assert.Nil(t, tx)
}
