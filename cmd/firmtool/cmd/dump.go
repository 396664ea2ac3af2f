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
	"os"

	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/cakesfw/firmboot/internal/decrypt"
	"github.com/cakesfw/firmboot/internal/hal/sim"
	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var (
		cidHex, keyHex, out string
		id                  uint8
	)
	c := &cobra.Command{
		Use:   "dump [nand.bin]",
		Short: "Decrypt a FIRM partition out of a raw NAND image",
		Long: `Read FIRM0 or FIRM1 from a raw NAND image and decrypt it with the NAND
key, using the counter derived from the console's NAND CID.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cidHex == "" || keyHex == "" {
				return errors.New("--cid and --key are required")
			}
			cid, err := parseKey(cidHex)
			if err != nil {
				return fmt.Errorf("--cid: %w", err)
			}
			key, err := parseKey(keyHex)
			if err != nil {
				return fmt.Errorf("--key: %w", err)
			}
			eng := crypto.NewSoftEngine()
			if err := eng.SetKey(crypto.SlotNAND, crypto.KeyNormal, key); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			img, err := decrypt.NANDFIRM(sim.NewNAND(f, [16]byte(cid)), eng, id)
			if err != nil {
				return err
			}

			if err := os.WriteFile(out, img, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote FIRM%d, %d bytes, to %s\n", id%2, len(img), out)
			return nil
		},
	}
	c.Flags().StringVar(&cidHex, "cid", "", "NAND CID, in hex")
	c.Flags().StringVar(&keyHex, "key", "", "normal key of the NAND key slot, in hex")
	c.Flags().Uint8Var(&id, "firm", 0, "FIRM partition to dump: 0 or 1")
	c.Flags().StringVarP(&out, "output", "o", "firm.bin", "where to write the FIRM")
	return c
}
