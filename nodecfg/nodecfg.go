// Package nodecfg loads and defaults the node's TOML configuration file:
// data directory, listening address, coinbase, genesis parameters, and the
// peer/sync tunables exposed elsewhere as constants. Follows
// BurntSushi/toml's documented decode-over-defaults idiom.
package nodecfg

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/example/gnode/common"
)

// Config is the complete set of node-startup parameters.
type Config struct {
	DataDir    string `toml:"datadir"`
	ListenAddr string `toml:"listen_addr"`

	Coinbase    common.Address `toml:"-"`
	CoinbaseHex string         `toml:"coinbase"`

	Mining bool `toml:"mining"`

	Bootnodes []string `toml:"bootnodes"`

	SyncStallTimeout        time.Duration `toml:"-"`
	SyncStallTimeoutSeconds int64         `toml:"sync_stall_timeout_seconds"`

	GenesisTimestamp  uint32 `toml:"genesis_timestamp"`
	GenesisDifficulty uint64 `toml:"genesis_difficulty"`
}

// Default returns the configuration a freshly-initialized node starts from
// absent a config file. GenesisDifficulty defaults to an exponent near the
// top of the compact range (see pow.FromCompact) rather than the classic
// 0x1d00ffff value: that value's hit probability is too low to mine a fresh
// genesis block at process startup in reasonable time, whereas a
// high-exponent target is sealed in a handful of nonces.
func Default() Config {
	return Config{
		DataDir:                 "./gnode-data",
		ListenAddr:              "0.0.0.0:30900",
		Mining:                  false,
		SyncStallTimeout:        30 * time.Second,
		SyncStallTimeoutSeconds: 30,
		GenesisTimestamp:        1700000000,
		GenesisDifficulty:       0x20ffffff,
	}
}

// Load reads and decodes a TOML config file at path over the defaults,
// resolving the derived fields (Coinbase from its hex string, the stall
// timeout from its integer seconds).
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return finalize(cfg)
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("nodecfg: opening %s: %w", path, err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("nodecfg: decoding %s: %w", path, err)
	}
	return finalize(cfg)
}

func finalize(cfg Config) (Config, error) {
	if cfg.CoinbaseHex != "" {
		addr, err := common.HexToAddress(cfg.CoinbaseHex)
		if err != nil {
			return Config{}, fmt.Errorf("nodecfg: invalid coinbase: %w", err)
		}
		cfg.Coinbase = addr
	}
	if cfg.SyncStallTimeoutSeconds > 0 {
		cfg.SyncStallTimeout = time.Duration(cfg.SyncStallTimeoutSeconds) * time.Second
	}
	if cfg.DataDir == "" {
		return Config{}, fmt.Errorf("nodecfg: datadir must not be empty")
	}
	return cfg, nil
}
