package cmd

import (
	"fmt"

	"github.com/mezonai/circlepay/security/validation"
	"github.com/spf13/cobra"
)

func newCircleCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circle",
		Short: "Create, join and contribute to savings circles",
	}
	cmd.AddCommand(
		newCircleCreateCmd(opts),
		newCircleJoinCmd(opts),
		newCircleContributeCmd(opts),
		newCircleShowCmd(opts),
		newCircleMemberCmd(opts),
		newCircleMembersCmd(opts),
	)
	return cmd
}

func newCircleCreateCmd(opts *cliOptions) *cobra.Command {
	var (
		name         string
		target       string
		contribution string
		maxMembers   uint32
		frequency    uint32
	)
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a circle with the caller as its first member",
		Example: `  circlepay circle create --caller alice --name family --target 1_000 --max-members 5 --contribution 100 --frequency 30`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			targetAmount, err := parseAmount(target)
			if err != nil {
				return err
			}
			contributionAmount, err := parseAmount(contribution)
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				id, err := ld.CreateCircle(caller, name, targetAmount, maxMembers, contributionAmount, frequency)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"circle_id": id})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Circle name (at most 50 bytes)")
	cmd.Flags().StringVar(&target, "target", "0", "Target amount")
	cmd.Flags().StringVar(&contribution, "contribution", "0", "Fixed amount each contribution moves")
	cmd.Flags().Uint32Var(&maxMembers, "max-members", 0, "Member limit including the creator")
	cmd.Flags().Uint32Var(&frequency, "frequency", 0, "Payout frequency in heights")
	_ = cmd.MarkFlagRequired("max-members")
	return cmd
}

func newCircleJoinCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <circle-id>",
		Short: "Join a circle as the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				if err := ld.JoinCircle(id, caller); err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"circle_id": id, "member": caller})
			})
		},
	}
}

func newCircleContributeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "contribute <circle-id>",
		Short: "Pay the circle's fixed contribution from the caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := opts.requireCaller()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				amount, err := ld.Contribute(id, caller)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{"circle_id": id, "member": caller, "contributed": amount})
			})
		},
	}
}

func newCircleShowCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <circle-id>",
		Short: "Print a circle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				circle, err := ld.GetCircle(id)
				if err != nil {
					return err
				}
				if circle == nil {
					return fmt.Errorf("circle %d not found", id)
				}
				return printJSON(cmd, circle)
			})
		},
	}
}

func newCircleMemberCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "member <circle-id> <identity>",
		Short: "Print one membership",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := validation.ValidateIdentity(args[1]); err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				m, err := ld.GetMembership(id, args[1])
				if err != nil {
					return err
				}
				if m == nil {
					return fmt.Errorf("%s is not a member of circle %d", args[1], id)
				}
				return printJSON(cmd, m)
			})
		},
	}
}

func newCircleMembersCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "members <circle-id>",
		Short: "List the members of a circle in join order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withLedger(func(ld ledgerAPI) error {
				members, err := ld.ListMembers(id)
				if err != nil {
					return err
				}
				return printJSON(cmd, members)
			})
		},
	}
}
