/*
Copyright 2025 Bravemoney Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bravemoney/bravemoney"
)

// opContext returns the context ledger operations run under, applying the
// --as identity override when given.
func opContext(as string) context.Context {
	ctx := context.Background()
	if as != "" {
		ctx = bravemoney.WithIdentity(ctx, as)
	}
	return ctx
}

// printResult renders an engine result as indented JSON on stdout. A failed
// result sets a non-zero exit status.
func printResult(result *bravemoney.Result, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if !result.Ok {
		os.Exit(1)
	}
}

func ledgerCommands(b *appInstance) *cobra.Command {
	var as string
	var note string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "ledger operations: balance, credit, debit, transfer",
	}
	cmd.PersistentFlags().StringVar(&as, "as", "", "run as this identity instead of the configured one")
	cmd.PersistentFlags().StringVar(&note, "note", "", "note recorded on the transaction")

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "show the current balance and transactions",
		Run: func(cmd *cobra.Command, args []string) {
			printResult(b.engine.GetBalance(opContext(as)))
		},
	}

	var amount float64
	creditCmd := &cobra.Command{
		Use:   "credit",
		Short: "add funds to the ledger",
		Run: func(cmd *cobra.Command, args []string) {
			printResult(b.engine.Credit(opContext(as), amount, note))
		},
	}
	creditCmd.Flags().Float64Var(&amount, "amount", 0, "amount to credit")

	var debitAmount float64
	debitCmd := &cobra.Command{
		Use:   "debit",
		Short: "remove funds from the ledger",
		Run: func(cmd *cobra.Command, args []string) {
			printResult(b.engine.Debit(opContext(as), debitAmount, note))
		},
	}
	debitCmd.Flags().Float64Var(&debitAmount, "amount", 0, "amount to debit")

	var transferAmount float64
	var toAccount string
	transferCmd := &cobra.Command{
		Use:   "transfer",
		Short: "move funds to another account",
		Run: func(cmd *cobra.Command, args []string) {
			printResult(b.engine.Transfer(opContext(as), toAccount, transferAmount, note))
		},
	}
	transferCmd.Flags().Float64Var(&transferAmount, "amount", 0, "amount to transfer")
	transferCmd.Flags().StringVar(&toAccount, "to", "", "destination account number")

	cmd.AddCommand(balanceCmd, creditCmd, debitCmd, transferCmd)
	return cmd
}
