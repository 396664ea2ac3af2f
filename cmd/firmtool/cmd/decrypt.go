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
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/decrypt"
	"github.com/cakesfw/firmboot/internal/keys"
	"github.com/cakesfw/firmboot/internal/loader"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

func newTitleKeyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "titlekey [cetk]",
		Short: "Decrypt the title key held by a CETK",
		Long: `Decrypt the title key of a CETK with the common key. The common key
slot's keyX must be preloaded through --config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := opts.engine()
			if err != nil {
				return err
			}
			cetk, err := readFile(args[0])
			if err != nil {
				return err
			}
			key, err := keys.NewProvider(nil, keys.NewSlots(eng)).DecryptTitleKey(cetk)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return nil
		},
	}
}

func newDecryptCmd(opts *options) *cobra.Command {
	var (
		cetkPath, keyHex, out, family string
		arm9Version                   uint8
	)
	c := &cobra.Command{
		Use:   "decrypt [container]",
		Short: "Unwrap a title container into a FIRM",
		Long: `Decrypt a firmware title container and write the FIRM it holds.

The title key is given with --key, or decrypted from --cetk. With
--arm9-version the N3DS ARM9 binary layer is decrypted too, and the ARM9
entrypoint fixed, as for a firmware of that version.

Examples:
  firmtool decrypt --config firmboot.yaml --cetk cetk -o firmware.bin firmware.app
  firmtool decrypt --config firmboot.yaml --key 000102030405060708090a0b0c0d0e0f --arm9-version 0x2d -o firmware.bin firmware.app`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFamily(family)
			if err != nil {
				return err
			}
			eng, err := opts.engine()
			if err != nil {
				return err
			}
			slots := keys.NewSlots(eng)

			var key []byte
			switch {
			case keyHex != "":
				if key, err = parseKey(keyHex); err != nil {
					return fmt.Errorf("--key: %w", err)
				}
			case cetkPath != "":
				cetk, err := readFile(cetkPath)
				if err != nil {
					return err
				}
				if key, err = keys.NewProvider(nil, slots).DecryptTitleKey(cetk); err != nil {
					return err
				}
			default:
				return errors.New("one of --key or --cetk is required")
			}

			buf, err := readFile(args[0])
			if err != nil {
				return err
			}
			img, err := decrypt.OuterContainer(eng, buf, key)
			if err != nil {
				return err
			}

			if arm9Version != 0 {
				if err := decryptARM9Bin(slots, img, f, arm9Version); err != nil {
					return err
				}
			}

			if err := os.WriteFile(out, img, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d byte %v to %s\n", len(img), f, out)
			return nil
		},
	}
	c.Flags().StringVar(&cetkPath, "cetk", "", "CETK to take the title key from")
	c.Flags().StringVar(&keyHex, "key", "", "title key, in hex")
	c.Flags().StringVarP(&out, "output", "o", "firmware.bin", "where to write the FIRM")
	c.Flags().StringVar(&family, "family", "native", "firmware family: native, twl or agb")
	c.Flags().Uint8Var(&arm9Version, "arm9-version", 0, "decrypt the N3DS ARM9 binary as for this firmware version")
	c.MarkFlagsMutuallyExclusive("cetk", "key")
	return c
}

func decryptARM9Bin(slots *keys.Slots, img []byte, f firm.Family, version uint8) error {
	changed, err := decrypt.ARM9Section(slots, img, f, version)
	if err != nil {
		return err
	}
	if !changed {
		glog.Info("ARM9 binary left as is")
	}
	firm.SetARM9Entry(img, loader.ARM9EntryFor(f))
	return nil
}
