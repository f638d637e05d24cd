package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mezonai/circlepay/logx"
	"github.com/mezonai/circlepay/types"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open genesis file: %w", err)
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("failed to decode genesis file: %w", err)
	}
	if err := cfgFile.Config.Validate(); err != nil {
		return nil, err
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded genesis | owner=%s | fee_rate_bps=%d | start_height=%d | accounts=%d",
		cfgFile.Config.Owner, cfgFile.Config.FeeRateBps, cfgFile.Config.StartHeight, len(cfgFile.Config.Accounts)))
	return &cfgFile.Config, nil
}

// Validate checks what can be checked before the ledger sees the values
func (g *GenesisConfig) Validate() error {
	if g.Owner == "" {
		return fmt.Errorf("genesis owner cannot be empty")
	}
	if g.FeeRateBps > types.MaxFeeRateBps {
		return fmt.Errorf("genesis fee_rate_bps %d exceeds %d", g.FeeRateBps, types.MaxFeeRateBps)
	}
	seen := make(map[string]struct{}, len(g.Accounts))
	for i, acc := range g.Accounts {
		if acc.Identity == "" {
			return fmt.Errorf("genesis account %d has no identity", i)
		}
		if _, dup := seen[acc.Identity]; dup {
			return fmt.Errorf("genesis account %s listed twice", acc.Identity)
		}
		seen[acc.Identity] = struct{}{}
	}
	return nil
}

// LoadNodeConfig reads the [store], [log] and [api] sections of node.ini on
// top of DefaultNodeConfig. A missing file yields the defaults.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	nodeCfg := DefaultNodeConfig()

	cfg, err := ini.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logx.Warn("CONFIG", fmt.Sprintf("Node config %s not found, using defaults", path))
			return nodeCfg, nil
		}
		return nil, fmt.Errorf("failed to load node config: %w", err)
	}

	if err := cfg.Section(sectionStore).MapTo(&nodeCfg.Store); err != nil {
		return nil, fmt.Errorf("failed to map [%s]: %w", sectionStore, err)
	}
	if err := cfg.Section(sectionLog).MapTo(&nodeCfg.Log); err != nil {
		return nil, fmt.Errorf("failed to map [%s]: %w", sectionLog, err)
	}
	if err := cfg.Section(sectionAPI).MapTo(&nodeCfg.API); err != nil {
		return nil, fmt.Errorf("failed to map [%s]: %w", sectionAPI, err)
	}
	if err := nodeCfg.Store.Validate(); err != nil {
		return nil, fmt.Errorf("invalid [%s] section: %w", sectionStore, err)
	}
	return nodeCfg, nil
}

// FileConfig converts the [log] section into a logx rotating-file config
func (lc LogConfig) FileConfig() logx.FileConfig {
	return logx.FileConfig{
		Filename:   lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxAgeDays: lc.MaxAgeDays,
	}
}
