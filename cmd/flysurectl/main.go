// Package main реализует flysurectl, консольный клиент реестра FlySure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mmeshcher/flysure/internal/wallet"
	"github.com/mmeshcher/flysure/pkg/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flysurectl",
		Short: "FlySure policy ledger CLI",
		Long: `flysurectl talks to a FlySure ledger server.
- Commands that act as an account sign a login challenge with --key.
- Holders approve the ledger custody address for the premium, then create a policy for a flight.
- The oracle reports the flight outcome (ON_TIME, DELAYED with minutes, CANCELLED).
- After departure the holder claims the payout or expires the policy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobra.OnInitialize(initConfig)

	root.PersistentFlags().String("server", "localhost:8080", "ledger server address")
	root.PersistentFlags().String("key", "", "hex private key of the account to act as")
	root.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("key", root.PersistentFlags().Lookup("key"))
	_ = viper.BindPFlag("json", root.PersistentFlags().Lookup("json"))

	root.AddCommand(walletCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(policyCmd())
	root.AddCommand(flightCmd())
	root.AddCommand(adminCmd())
	root.AddCommand(tokenCmd())
	return root
}

func initConfig() {
	viper.SetEnvPrefix("FLYSURE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// withClient создаёт клиент и, если задан --key, подключает его адрес.
func withClient(cmd *cobra.Command, needKey bool, fn func(ctx context.Context, c *client.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c := client.NewClient(viper.GetString("server"))

	hexKey := viper.GetString("key")
	if hexKey == "" && needKey {
		return errors.New("--key (or FLYSURE_KEY) is required for this command")
	}
	if hexKey != "" {
		key, err := wallet.ParseKey(hexKey)
		if err != nil {
			return err
		}
		if _, err := c.Connect(ctx, key); err != nil {
			return err
		}
	}
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render печатает v в JSON при --json либо строит таблицу.
func render(cmd *cobra.Command, v any, build func(tw table.Writer)) error {
	if viper.GetBool("json") {
		return printJSON(cmd.OutOrStdout(), v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	build(tw)
	tw.Render()
	return nil
}

// renderKV печатает пары поле и значение.
func renderKV(cmd *cobra.Command, v any, rows ...table.Row) error {
	return render(cmd, v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Field", "Value"})
		tw.AppendRows(rows)
	})
}
