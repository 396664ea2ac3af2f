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
	"fmt"

	"github.com/cakesfw/firmboot/firm"
	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [memory.bin]",
		Short: "List the blocks of a memory snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := readFile(args[0])
			if err != nil {
				return err
			}
			blocks, err := firm.ParseSnapshot(blob)
			if err != nil {
				return err
			}
			for _, b := range blocks {
				fmt.Fprintf(cmd.OutOrStdout(), "0x%08x 0x%x bytes\n", b.Location, len(b.Data))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d blocks\n", len(blocks))
			return nil
		},
	}
}
