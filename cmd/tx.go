package cmd

import (
	"fmt"

	"github.com/mezonai/circlepay/api"
	"github.com/mezonai/circlepay/ledger"
	"github.com/mezonai/circlepay/security/validation"
	"github.com/mezonai/circlepay/types"
	"github.com/spf13/cobra"
)

func newTxCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Read the transaction log",
	}
	cmd.AddCommand(newTxShowCmd(opts), newTxListCmd(opts))
	return cmd
}

func newTxShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <tx-id>",
		Short: "Print one log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				tx, err := ld.GetTransaction(id)
				if err != nil {
					return err
				}
				if tx == nil {
					return fmt.Errorf("transaction %d not found", id)
				}
				return printJSON(cmd, tx)
			})
		},
	}
}

func newTxListCmd(opts *cliOptions) *cobra.Command {
	var (
		identity string
		filter   string
		limit    uint32
		offset   uint32
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List log entries, optionally for one identity",
		Example: `  circlepay tx list --limit 10
  circlepay tx list --identity bob --filter incoming`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txFilter, err := types.ParseTxFilter(filter)
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				if identity == "" {
					txs, err := ld.ListTransactions(uint64(offset), uint64(limit))
					if err != nil {
						return err
					}
					return printJSON(cmd, txs)
				}
				if err := validation.ValidateIdentity(identity); err != nil {
					return err
				}
				total, txs, err := ld.TransactionsOf(identity, limit, offset, txFilter)
				if err != nil {
					return err
				}
				return printJSON(cmd, api.TxPage{Total: total, Txs: txs})
			})
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Only entries involving this identity")
	cmd.Flags().StringVar(&filter, "filter", "all", "With --identity: all, outgoing or incoming")
	cmd.Flags().Uint32Var(&limit, "limit", ledger.DefaultListLimit, "Page size")
	cmd.Flags().Uint32Var(&offset, "offset", 0, "Entries to skip")
	return cmd
}
