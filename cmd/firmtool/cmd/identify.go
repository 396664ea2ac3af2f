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
	"errors"
	"fmt"
	"io"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/chainload"
	"github.com/cakesfw/firmboot/internal/sigdb"
	"github.com/spf13/cobra"
)

func newIdentifyCmd() *cobra.Command {
	var sigdbPath, sigdbKey, family string
	c := &cobra.Command{
		Use:   "identify [firmware]",
		Short: "Match a decrypted FIRM against signature tables",
		Long: `Print the header of a decrypted FIRM and the firmware version its
identifying section hash matches.

Examples:
  firmtool identify --sigdb signatures.txt firmware.bin
  firmtool identify --sigdb signatures.txt --family twl twl_firmware.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFamily(family)
			if err != nil {
				return err
			}
			img, err := readFile(args[0])
			if err != nil {
				return err
			}
			if !firm.HasMagic(img) {
				return errors.New("not a decrypted FIRM, decrypt it first")
			}
			h, err := firm.ParseHeader(img)
			if err != nil {
				return err
			}
			printHeader(cmd.OutOrStdout(), h)

			if sigdbPath == "" {
				return nil
			}
			db, err := loadSigDB(sigdbPath, sigdbKey)
			if err != nil {
				return err
			}
			sig, ok := db.Identify(img, f)
			if !ok {
				return fmt.Errorf("%v version unknown", f)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%v version: %v\n", f, sig)
			return nil
		},
	}
	c.Flags().StringVar(&sigdbPath, "sigdb", "", "signature tables to match against")
	c.Flags().StringVar(&sigdbKey, "sigdb-key", "", "note verifier key the tables must be signed with")
	c.Flags().StringVar(&family, "family", "native", "firmware family: native, twl or agb")
	return c
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [payload]",
		Short: "Validate a homebrew FIRM payload",
		Long: `Run the checks a payload must pass before it is chainloaded: section
alignment, load regions, hashes and entrypoints.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readFile(args[0])
			if err != nil {
				return err
			}
			if len(img) <= chainload.MinPayloadSize || len(img) > chainload.MaxPayloadSize {
				return fmt.Errorf("payload of %d bytes is outside (%d, %d]", len(img), chainload.MinPayloadSize, chainload.MaxPayloadSize)
			}
			if err := firm.Check(img, chainload.PayloadBase); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}
			h, err := firm.ParseHeader(img)
			if err != nil {
				return err
			}
			printHeader(cmd.OutOrStdout(), h)
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func printHeader(w io.Writer, h *firm.Header) {
	fmt.Fprintf(w, "ARM9 entry:  0x%08x\n", h.ARM9Entry)
	fmt.Fprintf(w, "ARM11 entry: 0x%08x\n", h.ARM11Entry)
	if h.WantsScreenInit() {
		fmt.Fprintln(w, "Wants screen init")
	}
	for i, s := range h.Populated() {
		fmt.Fprintf(w, "Section %d: offset 0x%06x address 0x%08x size 0x%06x type %d\n", i, s.Offset, s.Address, s.Size, s.Type)
	}
}

func loadSigDB(p, vkey string) (sigdb.DB, error) {
	raw, err := readFile(p)
	if err != nil {
		return nil, err
	}
	if vkey == "" {
		return sigdb.Parse(string(raw))
	}
	v, err := sigdb.NewVerifier(vkey)
	if err != nil {
		return nil, fmt.Errorf("invalid verifier key: %w", err)
	}
	return sigdb.ParseSigned(raw, v)
}
