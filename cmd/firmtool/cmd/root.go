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

// Package cmd holds the firmtool commands.
package cmd

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/config"
	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

// maxFileSize bounds every input file.
const maxFileSize = 0x8000000

// options are shared by every command.
type options struct {
	configPath string
}

// NewRootCmd returns the firmtool command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "firmtool",
		Short: "Inspect and prepare firmboot inputs",
		Long: `firmtool works on the files firmboot reads from the boot media.

Commands:
  identify    Match a decrypted FIRM against signature tables
  check       Validate a homebrew FIRM payload
  titlekey    Decrypt the title key held by a CETK
  decrypt     Unwrap a title container into a FIRM
  dump        Decrypt a FIRM partition out of a raw NAND image
  snapshot    List the blocks of a memory snapshot
  sigdb       Generate keys for, sign and verify signature tables`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "firmboot configuration holding keyX preloads")
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	root.AddCommand(
		newIdentifyCmd(),
		newCheckCmd(),
		newTitleKeyCmd(opts),
		newDecryptCmd(opts),
		newDumpCmd(),
		newSnapshotCmd(),
		newSigDBCmd(),
	)
	return root
}

// Execute runs firmtool with the process arguments.
func Execute() {
	defer glog.Flush()
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// engine returns a software engine preloaded from the configuration.
func (o *options) engine() (*crypto.SoftEngine, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg.NewEngine()
}

func readFile(p string) ([]byte, error) {
	st, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if st.Size() > maxFileSize {
		return nil, fmt.Errorf("%s is %d bytes, more than the %d allowed", p, st.Size(), maxFileSize)
	}
	return os.ReadFile(p)
}

func parseFamily(s string) (firm.Family, error) {
	for _, f := range []firm.Family{firm.Native, firm.TWL, firm.AGB} {
		if s == f.String() || s == shortName(f) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown firmware family %q, want native, twl or agb", s)
}

func shortName(f firm.Family) string {
	switch f {
	case firm.TWL:
		return "twl"
	case firm.AGB:
		return "agb"
	}
	return "native"
}

func parseKey(s string) ([]byte, error) {
	k, err := hex.DecodeString(s)
	if err != nil || len(k) != crypto.BlockSize {
		return nil, fmt.Errorf("want %d hex digits, got %q", 2*crypto.BlockSize, s)
	}
	return k, nil
}
