package cmd

import (
	"fmt"

	"github.com/mezonai/circlepay/config"
	"github.com/mezonai/circlepay/logx"
	"github.com/spf13/cobra"
)

func newInitCmd(opts *cliOptions) *cobra.Command {
	var genesisPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the ledger from a genesis file",
		Long: `Initialize the ledger by:
- Fixing the owner identity, starting fee rate and starting height
- Registering and funding the genesis accounts

Running init again with the same owner is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			genesis, err := config.LoadGenesisConfig(genesisPath)
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				if err := applyGenesis(ld, genesis); err != nil {
					return err
				}
				params, err := ld.Params()
				if err != nil {
					return err
				}
				return printJSON(cmd, params)
			})
		},
	}
	cmd.Flags().StringVar(&genesisPath, "genesis", "config/genesis.yml", "Path to genesis configuration file")
	return cmd
}

// applyGenesis initializes the ledger and funds the genesis accounts. Accounts
// are only funded on the call that actually performed the initialization.
func applyGenesis(ld ledgerAPI, genesis *config.GenesisConfig) error {
	created, err := ld.InitState(genesis.Owner, genesis.FeeRateBps, genesis.StartHeight)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	if !created {
		logx.Info("INIT", "Ledger already initialized, skipping genesis accounts")
		return nil
	}

	for _, acc := range genesis.Accounts {
		if _, err := ld.Register(acc.Identity, acc.ContactInfo); err != nil {
			return fmt.Errorf("could not register genesis account %s: %w", acc.Identity, err)
		}
		if acc.Balance == 0 {
			continue
		}
		if _, err := ld.Deposit(acc.Identity, acc.Balance); err != nil {
			return fmt.Errorf("could not fund genesis account %s: %w", acc.Identity, err)
		}
	}
	logx.Info("INIT", fmt.Sprintf("Ledger initialized | owner=%s | accounts=%d", genesis.Owner, len(genesis.Accounts)))
	return nil
}
