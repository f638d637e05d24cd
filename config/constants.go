package config

import "github.com/mezonai/circlepay/store"

const (
	DefaultNodeConfigPath = "node.ini"
	DefaultDataDir        = "./data"
	DefaultHTTPAddr       = "127.0.0.1:8080"
	DefaultGRPCAddr       = "127.0.0.1:9090"

	sectionStore = "store"
	sectionLog   = "log"
	sectionAPI   = "api"
)

// DefaultNodeConfig is used for every key node.ini leaves out, and for
// everything when no node.ini exists
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Store: store.StoreConfig{
			Type:      store.LevelDBStoreType,
			Directory: DefaultDataDir,
		},
		Log: LogConfig{
			Stderr: true,
		},
		API: APIConfig{
			HTTPAddr: DefaultHTTPAddr,
			GRPCAddr: DefaultGRPCAddr,
		},
	}
}
