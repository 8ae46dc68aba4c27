package config

// GatewayConfig configures the public HTTP/WebSocket surface
type GatewayConfig struct {
	// RoundRepoType selects where active rounds live: memory or redis.
	// Redis survives restarts and is required for multi-instance runs.
	RoundRepoType string
	Redis         RedisConfig
}

// LoadGatewayConfig loads the gateway settings
func LoadGatewayConfig() GatewayConfig {
	return GatewayConfig{
		RoundRepoType: getEnv("ROUND_REPO_TYPE", "memory"),
		Redis:         LoadRedisConfig(),
	}
}
