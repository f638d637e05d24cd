package types

const (
	// DefaultAutoSavePercent is applied to every newly registered account
	DefaultAutoSavePercent uint8 = 10
	// MaxAutoSavePercent caps the share of each payment redirected into savings
	MaxAutoSavePercent uint8 = 50
	// MaxContactInfoBytes bounds Account.ContactInfo
	MaxContactInfoBytes = 20
)

// Account is the ledger record of one identity
type Account struct {
	Identity         string `json:"identity"`
	SpendableBalance uint64 `json:"spendable_balance"`
	SavingsBalance   uint64 `json:"savings_balance"`
	AutoSavePercent  uint8  `json:"auto_save_percent"`
	ContactInfo      string `json:"contact_info"`
	CreatedAt        uint64 `json:"created_at"`
}

// NewAccount returns an account with zero balances and the default auto-save rate
func NewAccount(identity, contactInfo string, height uint64) *Account {
	return &Account{
		Identity:        identity,
		AutoSavePercent: DefaultAutoSavePercent,
		ContactInfo:     contactInfo,
		CreatedAt:       height,
	}
}
