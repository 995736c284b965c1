package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmeshcher/flysure/internal/wallet"
	"github.com/mmeshcher/flysure/pkg/api"
	"github.com/mmeshcher/flysure/pkg/client"
)

func walletCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "wallet", Short: "Local key helpers"}

	cmd.AddCommand(&cobra.Command{
		Use:   "address",
		Short: "Print the account address of --key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := wallet.ParseKey(viper.GetString("key"))
			if err != nil {
				return err
			}
			addr := wallet.AddressOf(key).String()
			return renderKV(cmd, api.ConnectResponse{Address: addr}, table.Row{"Address", addr})
		},
	})
	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Inspect the ledger"}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show roles and custody account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, false, func(ctx context.Context, c *client.Client) error {
				info, err := c.LedgerInfo(ctx)
				if err != nil {
					return err
				}
				return renderKV(cmd, info,
					table.Row{"Owner", info.Owner},
					table.Row{"Oracle", info.Oracle},
					table.Row{"Custody", info.Custody},
					table.Row{"Custody balance", info.CustodyBalance + " " + info.Token.Symbol},
				)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "solvency",
		Short: "Compare custody balance with active payouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, false, func(ctx context.Context, c *client.Client) error {
				s, err := c.Solvency(ctx)
				if err != nil {
					return err
				}
				return renderKV(cmd, s,
					table.Row{"Custody", s.Custody},
					table.Row{"Liability", s.Liability},
					table.Row{"Shortfall", s.Shortfall},
					table.Row{"Active policies", s.ActivePolicies},
					table.Row{"Solvent", s.Solvent},
				)
			})
		},
	})
	return cmd
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Manage policies"}
	cmd.AddCommand(policyCreateCmd())
	cmd.AddCommand(policyGetCmd())
	cmd.AddCommand(policyListCmd())
	cmd.AddCommand(policySettleCmd("claim", "Claim the payout of a qualifying policy", (*client.Client).Claim))
	cmd.AddCommand(policySettleCmd("expire", "Close a non-qualifying policy without payout", (*client.Client).Expire))
	cmd.AddCommand(policyReportCmd())
	return cmd
}

func policyCreateCmd() *cobra.Command {
	var req api.CreatePolicyRequest
	var departure string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Insure a flight (approve the custody address for the premium first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseDeparture(departure)
			if err != nil {
				return err
			}
			req.DepartureTimestamp = ts

			return withClient(cmd, true, func(ctx context.Context, c *client.Client) error {
				id, err := c.CreatePolicy(ctx, req)
				if err != nil {
					return err
				}
				return renderKV(cmd, api.CreatePolicyResponse{PolicyID: id}, table.Row{"Policy ID", id})
			})
		},
	}
	cmd.Flags().StringVar(&req.FlightID, "flight", "", "flight id, e.g. TK1234")
	cmd.Flags().StringVar(&req.Premium, "premium", "", "premium in PYUSD")
	cmd.Flags().StringVar(&req.Payout, "payout", "", "payout in PYUSD")
	cmd.Flags().Int64Var(&req.DelayThresholdMinutes, "threshold", 120, "delay threshold in minutes")
	cmd.Flags().StringVar(&departure, "departure", "", "scheduled departure, Unix seconds or RFC3339")
	_ = cmd.MarkFlagRequired("flight")
	_ = cmd.MarkFlagRequired("premium")
	_ = cmd.MarkFlagRequired("payout")
	_ = cmd.MarkFlagRequired("departure")
	return cmd
}

func policyGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show policy details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, false, func(ctx context.Context, c *client.Client) error {
				p, err := c.GetPolicy(ctx, id)
				if err != nil {
					return err
				}
				return renderPolicy(cmd, p)
			})
		},
	}
}

func policyListCmd() *cobra.Command {
	var holder string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List policies of the connected address or of --holder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, holder == "", func(ctx context.Context, c *client.Client) error {
				if holder != "" {
					ids, err := c.HolderPolicies(ctx, holder)
					if err != nil {
						return err
					}
					return render(cmd, ids, func(tw table.Writer) {
						tw.AppendHeader(table.Row{"Policy ID"})
						for _, id := range ids.PolicyIDs {
							tw.AppendRow(table.Row{id})
						}
					})
				}

				policies, err := c.ListPolicies(ctx)
				if err != nil {
					return err
				}
				return render(cmd, policies, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Flight", "Departure", "Premium", "Payout", "Flight status", "Status"})
					for _, p := range policies {
						tw.AppendRow(table.Row{
							p.ID, p.FlightID, formatUnix(p.DepartureTimestamp),
							p.Premium, p.Payout, flightStatus(p), p.Status,
						})
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "list policy ids of this holder")
	return cmd
}

func policySettleCmd(use, short string, op func(*client.Client, context.Context, int64) (api.Policy, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, true, func(ctx context.Context, c *client.Client) error {
				p, err := op(c, ctx, id)
				if err != nil {
					return err
				}
				return renderPolicy(cmd, p)
			})
		},
	}
}

func policyReportCmd() *cobra.Command {
	var status string
	var delay int64

	cmd := &cobra.Command{
		Use:   "report <id>",
		Short: "Record the flight outcome (oracle only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, true, func(ctx context.Context, c *client.Client) error {
				p, err := c.ReportFlightStatus(ctx, id, status, delay)
				if err != nil {
					return err
				}
				return renderPolicy(cmd, p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "ON_TIME, DELAYED or CANCELLED")
	cmd.Flags().Int64Var(&delay, "delay", 0, "delay in minutes, used with DELAYED")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func flightCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "flight", Short: "Inspect flight coverage"}

	var holder string
	check := &cobra.Command{
		Use:   "check <flight-id>",
		Short: "Show whether a flight is insured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, false, func(ctx context.Context, c *client.Client) error {
				f, err := c.Flight(ctx, args[0], holder)
				if err != nil {
					return err
				}
				rows := []table.Row{
					{"Flight", f.FlightID},
					{"Has policy", f.HasPolicy},
					{"Active policies", fmt.Sprint(f.ActivePolicyIDs)},
				}
				if f.InsuredByHolder != nil {
					rows = append(rows, table.Row{"Insured by holder", *f.InsuredByHolder})
				}
				return renderKV(cmd, f, rows...)
			})
		},
	}
	check.Flags().StringVar(&holder, "holder", "", "also check this holder's policy")
	cmd.AddCommand(check)
	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Owner operations"}
	cmd.AddCommand(adminRoleCmd("set-oracle <address>", "Replace the oracle address", (*client.Client).SetOracle))
	cmd.AddCommand(adminRoleCmd("transfer-ownership <address>", "Hand the owner role to another address", (*client.Client).TransferOwnership))
	return cmd
}

func adminRoleCmd(use, short string, op func(*client.Client, context.Context, string) (api.LedgerInfo, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(ctx context.Context, c *client.Client) error {
				info, err := op(c, ctx, args[0])
				if err != nil {
					return err
				}
				return renderKV(cmd, info,
					table.Row{"Owner", info.Owner},
					table.Row{"Oracle", info.Oracle},
				)
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Stablecoin operations"}

	cmd.AddCommand(&cobra.Command{
		Use:   "balance <address>",
		Short: "Show account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, false, func(ctx context.Context, c *client.Client) error {
				b, err := c.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				return renderBalance(cmd, b)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <spender> <amount>",
		Short: "Allow spender to pull funds from the connected address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(ctx context.Context, c *client.Client) error {
				a, err := c.Approve(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return renderKV(cmd, a,
					table.Row{"Owner", a.Owner},
					table.Row{"Spender", a.Spender},
					table.Row{"Allowance", a.Allowance},
				)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "transfer <to> <amount>",
		Short: "Send funds, e.g. to fund the ledger custody",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(ctx context.Context, c *client.Client) error {
				b, err := c.Transfer(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return renderBalance(cmd, b)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "faucet <amount>",
		Short: "Mint testnet funds to the connected address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(ctx context.Context, c *client.Client) error {
				b, err := c.Faucet(ctx, args[0])
				if err != nil {
					return err
				}
				return renderBalance(cmd, b)
			})
		},
	})
	return cmd
}

func renderPolicy(cmd *cobra.Command, p api.Policy) error {
	rows := []table.Row{
		{"ID", p.ID},
		{"Holder", p.Holder},
		{"Flight", p.FlightID},
		{"Departure", formatUnix(p.DepartureTimestamp)},
		{"Premium", p.Premium},
		{"Payout", p.Payout},
		{"Delay threshold", fmt.Sprintf("%d min", p.DelayThresholdMinutes)},
		{"Flight status", flightStatus(p)},
		{"Qualifies for payout", p.QualifiesForPayout},
		{"Status", p.Status},
	}
	if p.SettledAt != nil {
		rows = append(rows, table.Row{"Settled at", p.SettledAt.Format(time.RFC3339)})
	}
	return renderKV(cmd, p, rows...)
}

func renderBalance(cmd *cobra.Command, b api.Balance) error {
	return renderKV(cmd, b,
		table.Row{"Address", b.Address},
		table.Row{"Balance", b.Balance},
	)
}

func flightStatus(p api.Policy) string {
	if p.FlightStatus == "DELAYED" {
		return fmt.Sprintf("DELAYED %d min", p.ActualDelayMinutes)
	}
	return p.FlightStatus
}

// parseDeparture принимает время вылета в Unix-секундах или в RFC3339.
func parseDeparture(s string) (int64, error) {
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("--departure must be Unix seconds or RFC3339: %q", s)
	}
	return at.Unix(), nil
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid policy id %q", s)
	}
	return id, nil
}
