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

// Package config loads the bootloader configuration.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cakesfw/firmboot/firm"
	"github.com/cakesfw/firmboot/internal/crypto"
	"github.com/golang/glog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding configuration keys,
// e.g. FIRMBOOT_AUTOBOOT.
const EnvPrefix = "FIRMBOOT"

// Paths are the storage locations of one firmware family.
type Paths struct {
	// Firmware is the FIRM as found on storage, possibly encrypted.
	Firmware string `mapstructure:"firmware"`
	// FirmKey caches the title key derived from CETK.
	FirmKey string `mapstructure:"firmkey"`
	CETK    string `mapstructure:"cetk"`
	// Patched is where the patched FIRM is saved for autoboot.
	Patched string `mapstructure:"patched"`
}

// Config is the bootloader configuration.
type Config struct {
	Native Paths `mapstructure:"native"`
	TWL    Paths `mapstructure:"twl"`
	AGB    Paths `mapstructure:"agb"`

	// Unsupported is where an unidentified NATIVE_FIRM is dumped.
	Unsupported string `mapstructure:"unsupported"`
	// Memory is where the memory snapshot is kept.
	Memory string `mapstructure:"memory"`

	// SigDB is the signature table file and SigDBKey, if set, the Ed25519
	// or ECDSA note verifier key it must be signed with.
	SigDB    string `mapstructure:"sigdb"`
	SigDBKey string `mapstructure:"sigdb_key"`

	Autoboot        bool `mapstructure:"autoboot"`
	ForceSave       bool `mapstructure:"force_save"`
	PatchesModified bool `mapstructure:"patches_modified"`

	// SDMode selects the SD card, rather than the internal storage, as the
	// origin reported to payloads.
	SDMode     bool   `mapstructure:"sd_mode"`
	PayloadDir string `mapstructure:"payload_dir"`
	// Payloads binds hex button masks to payload file names.
	Payloads       map[string]string `mapstructure:"payloads"`
	DefaultPayload string            `mapstructure:"default_payload"`

	// KeyX holds boot ROM keyX values for the software AES engine, keyed by
	// hex slot number.
	KeyX map[string]string `mapstructure:"keyx"`
	// ExtraSeeds adds keyX seed offsets for NATIVE_FIRM versions, both in
	// hex.
	ExtraSeeds map[string]string `mapstructure:"extra_seeds"`
}

func setDefaults(v *viper.Viper) {
	for _, d := range []struct{ key, prefix string }{
		{"native", ""},
		{"twl", "twl_"},
		{"agb", "agb_"},
	} {
		v.SetDefault(d.key+".firmware", "/cakes/"+d.prefix+"firmware.bin")
		v.SetDefault(d.key+".firmkey", "/cakes/"+d.prefix+"firmkey.bin")
		v.SetDefault(d.key+".cetk", "/cakes/"+d.prefix+"cetk")
		v.SetDefault(d.key+".patched", "/cakes/patched_"+d.prefix+"firmware.bin")
	}
	v.SetDefault("unsupported", "/cakes/firmware_unsupported.bin")
	v.SetDefault("memory", "/cakes/memory.bin")
	v.SetDefault("sigdb", "/cakes/signatures.txt")
	v.SetDefault("sigdb_key", "")
	v.SetDefault("autoboot", false)
	v.SetDefault("force_save", false)
	v.SetDefault("patches_modified", false)
	v.SetDefault("sd_mode", true)
	v.SetDefault("payload_dir", "payloads")
	v.SetDefault("default_payload", "")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return c
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return &c, nil
}

// Load reads the configuration file at path, which may be YAML, JSON or TOML.
// An empty path yields the defaults, overridden by the environment.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration %q: %w", path, err)
		}
	}
	c, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if _, err := c.KeyXSlots(); err != nil {
		return err
	}
	if _, err := c.Seeds(); err != nil {
		return err
	}
	if _, err := c.ButtonPayloads(); err != nil {
		return err
	}
	if c.Native.Firmware == "" {
		return errors.New("native.firmware must be set")
	}
	return nil
}

// PathsFor returns the storage locations of family f.
func (c *Config) PathsFor(f firm.Family) Paths {
	switch f {
	case firm.TWL:
		return c.TWL
	case firm.AGB:
		return c.AGB
	}
	return c.Native
}

// KeyXSlots decodes KeyX.
func (c *Config) KeyXSlots() (map[uint8][]byte, error) {
	out := make(map[uint8][]byte, len(c.KeyX))
	for s, k := range c.KeyX {
		slot, err := parseHex(s, 8)
		if err != nil {
			return nil, fmt.Errorf("keyx: bad slot %q: %w", s, err)
		}
		key, err := hex.DecodeString(k)
		if err != nil || len(key) != 16 {
			return nil, fmt.Errorf("keyx: slot %s: want 32 hex digits, got %q", s, k)
		}
		out[uint8(slot)] = key
	}
	return out, nil
}

// NewEngine returns a software AES engine with the keyX of every KeyX slot
// preloaded.
func (c *Config) NewEngine() (*crypto.SoftEngine, error) {
	preloads, err := c.KeyXSlots()
	if err != nil {
		return nil, err
	}
	if len(preloads) == 0 {
		glog.Warning("No keyX preloads configured, boot ROM keys will be missing")
	}
	eng := crypto.NewSoftEngine()
	if err := eng.Preload(preloads); err != nil {
		return nil, err
	}
	glog.V(1).Infof("Preloaded keyX of %d slots", len(preloads))
	return eng, nil
}

// Seeds decodes ExtraSeeds into version to offset pairs.
func (c *Config) Seeds() (map[uint8]uint32, error) {
	out := make(map[uint8]uint32, len(c.ExtraSeeds))
	for v, o := range c.ExtraSeeds {
		version, err := parseHex(v, 8)
		if err != nil {
			return nil, fmt.Errorf("extra_seeds: bad version %q: %w", v, err)
		}
		off, err := parseHex(o, 32)
		if err != nil {
			return nil, fmt.Errorf("extra_seeds: version %s: bad offset %q: %w", v, o, err)
		}
		out[uint8(version)] = uint32(off)
	}
	return out, nil
}

// ButtonPayloads decodes Payloads.
func (c *Config) ButtonPayloads() (map[uint32]string, error) {
	out := make(map[uint32]string, len(c.Payloads))
	for m, name := range c.Payloads {
		mask, err := parseHex(m, 32)
		if err != nil {
			return nil, fmt.Errorf("payloads: bad button mask %q: %w", m, err)
		}
		out[uint32(mask)] = name
	}
	return out, nil
}

func parseHex(s string, bits int) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return strconv.ParseUint(s, 16, bits)
}
