package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Owner and clock controls",
	}
	cmd.AddCommand(newSetFeeCmd(opts), newStepCmd(opts))
	return cmd
}

func newSetFeeCmd(opts *cliOptions) *cobra.Command {
	var bps uint16
	cmd := &cobra.Command{
		Use:   "set-fee",
		Short: "Set the platform fee rate in basis points (owner only, max 1000)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				rate, err := ld.SetFeeRate(caller, bps)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"fee_rate_bps": rate})
			})
		},
	}
	cmd.Flags().Uint16Var(&bps, "bps", 0, "New fee rate in basis points")
	_ = cmd.MarkFlagRequired("bps")
	return cmd
}

func newStepCmd(opts *cliOptions) *cobra.Command {
	var (
		delta  uint64
		height uint64
	)
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Advance the ledger height",
		Long: `Advance the ledger height by --delta (default 1), or jump to --height.
The height never moves backwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			heightSet := cmd.Flags().Changed("height")
			if heightSet && cmd.Flags().Changed("delta") {
				return fmt.Errorf("--delta and --height are mutually exclusive")
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				var (
					now uint64
					err error
				)
				if heightSet {
					now, err = ld.SetHeight(height)
				} else {
					now, err = ld.AdvanceHeight(delta)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"height": now})
			})
		},
	}
	cmd.Flags().Uint64Var(&delta, "delta", 1, "Heights to advance by")
	cmd.Flags().Uint64Var(&height, "height", 0, "Absolute height to move to")
	return cmd
}
