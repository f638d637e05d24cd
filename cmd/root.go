package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mezonai/circlepay/api"
	"github.com/mezonai/circlepay/config"
	"github.com/mezonai/circlepay/events"
	"github.com/mezonai/circlepay/jsonx"
	"github.com/mezonai/circlepay/ledger"
	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/monitoring"
	"github.com/mezonai/circlepay/security/validation"
	"github.com/mezonai/circlepay/store"
	"github.com/mezonai/circlepay/types"
	"github.com/spf13/cobra"
)

// cliOptions holds the persistent flags shared by every subcommand
type cliOptions struct {
	configPath string
	caller     string
	serverURL  string
	nodeCfg    *config.NodeConfig
}

// ledgerAPI is what the commands need from a ledger. *ledger.Ledger serves it
// from the local store and *api.Client from a running serve process.
type ledgerAPI interface {
	InitState(owner string, feeRateBps uint16, height uint64) (bool, error)
	Register(identity, contactInfo string) (bool, error)
	Deposit(identity string, amount uint64) (uint64, error)
	Pay(sender, recipient string, amount uint64) (uint64, error)
	ManualSave(identity string, amount uint64) (uint64, error)
	WithdrawSavings(identity string, amount uint64) (uint64, error)
	SetAutoSavePercent(identity string, percent uint8) (uint8, error)
	CreateCircle(creator, name string, targetAmount uint64, maxMembers uint32, contributionAmount uint64, payoutFrequency uint32) (uint64, error)
	JoinCircle(circleID uint64, member string) error
	Contribute(circleID uint64, member string) (uint64, error)
	SetFeeRate(caller string, feeRateBps uint16) (uint16, error)
	AdvanceHeight(delta uint64) (uint64, error)
	SetHeight(height uint64) (uint64, error)

	GetAccount(identity string) (*types.Account, error)
	GetCircle(circleID uint64) (*types.Circle, error)
	GetMembership(circleID uint64, member string) (*types.Membership, error)
	ListMembers(circleID uint64) ([]*types.Membership, error)
	GetTransaction(id uint64) (*types.Transaction, error)
	ListTransactions(offset, limit uint64) ([]*types.Transaction, error)
	TransactionsOf(identity string, limit, offset uint32, filter types.TxFilter) (uint32, []*types.Transaction, error)
	Params() (*types.Params, error)
}

var (
	_ ledgerAPI = (*ledger.Ledger)(nil)
	_ ledgerAPI = (*api.Client)(nil)
)

var rootCmd = NewRootCmd()

// NewRootCmd builds the full command tree with its own flag state
func NewRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "circlepay",
		Short:         "circlepay ledger CLI",
		Long:          "Command line interface for running and operating a circlepay micro-finance ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultNodeConfigPath, "Path to node.ini")
	root.PersistentFlags().StringVar(&opts.caller, "caller", "", "Identity performing the operation")
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "", "Base URL of a running 'circlepay serve'; when set, commands go through its HTTP API instead of the local store")

	root.AddCommand(
		newInitCmd(opts),
		newAccountCmd(opts),
		newPayCmd(opts),
		newSaveCmd(opts),
		newWithdrawCmd(opts),
		newCircleCmd(opts),
		newAdminCmd(opts),
		newTxCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}

func (o *cliOptions) setup() error {
	nodeCfg, err := config.LoadNodeConfig(o.configPath)
	if err != nil {
		return err
	}
	o.nodeCfg = nodeCfg

	switch {
	case nodeCfg.Log.File != "":
		logx.InitFile(nodeCfg.Log.FileConfig(), nodeCfg.Log.Stderr)
	case os.Getenv("LOGFILE") != "":
		fileCfg, err := logx.FileConfigFromEnv()
		if err != nil {
			return err
		}
		logx.InitFile(fileCfg, nodeCfg.Log.Stderr)
	}
	monitoring.InitMetrics()
	return nil
}

// openLedger opens the configured store. The returned close func must be called.
func (o *cliOptions) openLedger(bus *events.EventBus) (*ledger.Ledger, func(), error) {
	stores, err := store.CreateStore(&o.nodeCfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	closeFn := func() {
		if err := stores.Close(); err != nil {
			logx.Error("CMD", "Failed to close store:", err)
		}
	}
	return ledger.NewLedger(stores, bus), closeFn, nil
}

// withLedger runs fn against the ledger. With --server it talks to the serving
// process, which holds the store lock; otherwise it opens the store directly
// and closes it afterwards.
func (o *cliOptions) withLedger(fn func(ld ledgerAPI) error) error {
	if o.serverURL != "" {
		return fn(api.NewClient(o.serverURL))
	}
	ld, closeFn, err := o.openLedger(nil)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ld)
}

func (o *cliOptions) requireCaller() (string, error) {
	if err := validation.ValidateIdentity(o.caller); err != nil {
		return "", fmt.Errorf("--caller: %w", err)
	}
	return o.caller, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := jsonx.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

// parseAmount accepts decimal amounts with optional '_' digit separators
func parseAmount(raw string) (uint64, error) {
	amount, err := strconv.ParseUint(strings.ReplaceAll(raw, "_", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse amount %q: %w", raw, err)
	}
	return amount, nil
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse id %q: %w", raw, err)
	}
	return id, nil
}
