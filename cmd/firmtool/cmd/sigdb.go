// Copyright 2026 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"crypto/rand"
	"fmt"
	"os"
	"strings"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/sigdb"
	"github.com/spf13/cobra"
	"golang.org/x/mod/sumdb/note"
)

func newSigDBCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "sigdb",
		Short: "Generate keys for, sign and verify signature tables",
		Long: `Signature tables may be distributed as signed notes. firmboot only
trusts a signed table when its configuration names the verifier key
(sigdb_key).`,
	}
	c.AddCommand(newSigDBKeygenCmd(), newSigDBSignCmd(), newSigDBVerifyCmd())
	return c
}

func newSigDBKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen [name]",
		Short: "Generate a note signer and verifier key pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skey, vkey, err := note.GenerateKey(rand.Reader, args[0])
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", skey, vkey)
			return nil
		},
	}
}

func newSigDBSignCmd() *cobra.Command {
	var keyPath, out string
	c := &cobra.Command{
		Use:   "sign [tables]",
		Short: "Sign signature tables",
		Long: `Check that the tables parse, then sign them with the note signer key
stored in --key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skey, err := readFile(keyPath)
			if err != nil {
				return err
			}
			signer, err := note.NewSigner(strings.TrimSpace(string(skey)))
			if err != nil {
				return fmt.Errorf("invalid signer key: %w", err)
			}
			text, err := readFile(args[0])
			if err != nil {
				return err
			}
			db, err := sigdb.Parse(string(text))
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}
			msg, err := note.Sign(&note.Note{Text: sigdb.Format(db)}, signer)
			if err != nil {
				return fmt.Errorf("failed to sign: %w", err)
			}
			if err := os.WriteFile(out, msg, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed tables written to %s\n", out)
			return nil
		},
	}
	c.Flags().StringVar(&keyPath, "key", "", "file holding the note signer key")
	c.Flags().StringVarP(&out, "output", "o", "signatures.txt", "where to write the signed tables")
	_ = c.MarkFlagRequired("key")
	return c
}

func newSigDBVerifyCmd() *cobra.Command {
	var vkey string
	c := &cobra.Command{
		Use:   "verify [signed tables]",
		Short: "Verify signed signature tables and summarise them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := loadSigDB(args[0], vkey)
			if err != nil {
				return err
			}
			for _, f := range []firm.Family{firm.Native, firm.TWL, firm.AGB} {
				fmt.Fprintf(cmd.OutOrStdout(), "%v: %d signatures\n", f, db[f].Len())
			}
			return nil
		},
	}
	c.Flags().StringVar(&vkey, "key", "", "note verifier key")
	_ = c.MarkFlagRequired("key")
	return c
}
