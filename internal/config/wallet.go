package config

// WalletConfig configures the account ledger
type WalletConfig struct {
	// RepoType selects the ledger backend: memory or db
	RepoType string
	Database DatabaseConfig
	// DefaultCurrency is assumed when a request omits the currency
	DefaultCurrency string
}

// LoadWalletConfig loads the ledger settings
func LoadWalletConfig() WalletConfig {
	return WalletConfig{
		RepoType:        getEnv("WALLET_REPO_TYPE", "memory"),
		Database:        LoadDatabaseConfig(),
		DefaultCurrency: getEnv("WALLET_DEFAULT_CURRENCY", "USD"),
	}
}
