package config

import "github.com/mezonai/circlepay/store"

// GenesisAccount is an account registered and funded when the ledger is initialized
type GenesisAccount struct {
	Identity    string `yaml:"identity"`
	ContactInfo string `yaml:"contact_info"`
	Balance     uint64 `yaml:"balance"`
}

// GenesisConfig holds the configuration from genesis.yml
type GenesisConfig struct {
	Owner       string           `yaml:"owner"`
	FeeRateBps  uint16           `yaml:"fee_rate_bps"`
	StartHeight uint64           `yaml:"start_height"`
	Accounts    []GenesisAccount `yaml:"accounts"`
}

// ConfigFile is the top-level structure for genesis.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}

type LogConfig struct {
	File       string `ini:"file"`
	MaxSizeMB  int    `ini:"max_size_mb"`
	MaxAgeDays int    `ini:"max_age_days"`
	Stderr     bool   `ini:"stderr"`
}

type APIConfig struct {
	HTTPAddr string `ini:"http_addr"`
	GRPCAddr string `ini:"grpc_addr"`
}

// NodeConfig is everything node.ini configures
type NodeConfig struct {
	Store store.StoreConfig
	Log   LogConfig
	API   APIConfig
}
