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

// firmboot_emu boots firmware from a storage directory, or an ext4 image
// of the boot media, on a simulated console.
//
// The full pipeline runs as it would on the device: titles are decrypted,
// identified and fixed up, the patched artifacts are saved back to storage,
// and the handoff writes the image into simulated memory and releases the
// secondary core. Holding buttons chainloads a homebrew payload instead.
//
// Usage:
//
//	go run ./cmd/firmboot_emu --logtostderr --storage_dir=/tmp/sdmc --config=/tmp/sdmc/cakes/firmboot.yaml
package main

import (
	"context"
	"flag"

	"github.com/cakesfw/firmboot/cmd/firmboot_emu/impl"
	"github.com/golang/glog"
)

var (
	configPath = flag.String("config", "", "Path to the configuration file, defaults are used if unset")
	storageDir = flag.String("storage_dir", "", "Directory standing in for the SD card")
	ext4Image  = flag.String("ext4_image", "", "Path to an ext4 image of the boot media, used read-only instead of --storage_dir")
	buttons    = flag.Uint("buttons", 0, "Button mask held at boot, e.g. 0x100; selects a chainload payload")
	menu       = flag.Bool("menu", false, "Open the payload menu instead of booting the firmware")
	timeout    = flag.Duration("timeout", 0, "Give up on the boot after this long, 0 waits forever")
)

func main() {
	flag.Parse()

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	if err := impl.Main(ctx, impl.EmulatorOpts{
		ConfigPath: *configPath,
		StorageDir: *storageDir,
		Ext4Image:  *ext4Image,
		Buttons:    uint32(*buttons),
		Menu:       *menu,
	}); err != nil {
		glog.Exitf("firmboot: %v", err)
	}
}
