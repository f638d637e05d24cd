package cmd

import (
	"fmt"

	"github.com/mezonai/circlepay/security/validation"
	"github.com/spf13/cobra"
)

func newAccountCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Register, fund and inspect accounts",
	}
	cmd.AddCommand(
		newAccountRegisterCmd(opts),
		newAccountDepositCmd(opts),
		newAccountShowCmd(opts),
		newAccountAutoSaveCmd(opts),
	)
	return cmd
}

func newAccountRegisterCmd(opts *cliOptions) *cobra.Command {
	var contactInfo string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the caller's account (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				created, err := ld.Register(caller, contactInfo)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"identity": caller, "created": created})
			})
		},
	}
	cmd.Flags().StringVar(&contactInfo, "contact", "", "Contact info (at most 20 bytes)")
	return cmd
}

func newAccountDepositCmd(opts *cliOptions) *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Credit the caller's spendable balance",
		Example: `  # Deposit 1000 into alice's account
  circlepay account deposit --caller alice --amount 1_000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				deposited, err := ld.Deposit(caller, value)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"identity": caller, "deposited": deposited})
			})
		},
	}
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "Amount to deposit")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newAccountShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <identity>",
		Short: "Print an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateIdentity(args[0]); err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				acc, err := ld.GetAccount(args[0])
				if err != nil {
					return err
				}
				if acc == nil {
					return fmt.Errorf("account %s not found", args[0])
				}
				return printJSON(cmd, acc)
			})
		},
	}
}

func newAccountAutoSaveCmd(opts *cliOptions) *cobra.Command {
	var percent uint8
	cmd := &cobra.Command{
		Use:   "autosave",
		Short: "Set the share of each payment skimmed into savings (0-50)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				set, err := ld.SetAutoSavePercent(caller, percent)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"identity": caller, "auto_save_percent": set})
			})
		},
	}
	cmd.Flags().Uint8Var(&percent, "percent", 0, "Auto-save percent")
	_ = cmd.MarkFlagRequired("percent")
	return cmd
}
