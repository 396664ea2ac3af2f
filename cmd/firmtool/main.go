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

// firmtool inspects and prepares the files firmboot reads: FIRM images,
// title containers, tickets, memory snapshots and signature tables.
//
// Usage:
//
//	go run ./cmd/firmtool identify --sigdb signatures.txt firmware.bin
//	go run ./cmd/firmtool decrypt --config firmboot.yaml --cetk cetk -o firmware.bin firmware.app
package main

import "github.com/cakesfw/firmboot/cmd/firmtool/cmd"

func main() {
	cmd.Execute()
}
