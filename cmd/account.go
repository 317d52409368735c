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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func accountCommands(b *appInstance) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "account",
		Short: "account management: show, link, unlink, recover",
	}
	cmd.PersistentFlags().StringVar(&as, "as", "", "run as this identity instead of the configured one")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "show the account number, reserving one on first use",
		Run: func(cmd *cobra.Command, args []string) {
			acct, err := b.engine.EnsureAccount(opContext(as))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Println(acct)
		},
	}

	var target string
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "point ledger operations at another account",
		Run: func(cmd *cobra.Command, args []string) {
			printResult(b.engine.Link(opContext(as), target))
		},
	}
	linkCmd.Flags().StringVar(&target, "account", "", "account number to link")

	unlinkCmd := &cobra.Command{
		Use:   "unlink",
		Short: "point ledger operations back at the own ledger",
		Run: func(cmd *cobra.Command, args []string) {
			printResult(b.engine.Unlink(opContext(as)))
		},
	}

	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "apply credit legs left behind by interrupted transfers",
		Run: func(cmd *cobra.Command, args []string) {
			recovered, err := b.engine.RecoverPendingTransfers(opContext(as))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("recovered %d pending transfer(s)\n", recovered)
		},
	}

	cmd.AddCommand(showCmd, linkCmd, unlinkCmd, recoverCmd)
	return cmd
}
