package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the wagering server
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Wallet  WalletConfig
	Games   GamesConfig
	Gateway GatewayConfig
	Admin   AdminConfig
}

// Load reads the full server configuration from the environment
func Load() *Config {
	return &Config{
		Server:  LoadServerConfig(),
		Log:     LoadLogConfig(),
		Wallet:  LoadWalletConfig(),
		Games:   LoadGamesConfig(),
		Gateway: LoadGatewayConfig(),
		Admin:   LoadAdminConfig(),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
