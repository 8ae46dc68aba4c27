package config

// AdminConfig configures the internal ops server. It binds separately from
// the public surface and must not be exposed.
type AdminConfig struct {
	Enabled bool
	Port    string
}

// LoadAdminConfig loads the admin settings
func LoadAdminConfig() AdminConfig {
	return AdminConfig{
		Enabled: getEnvBool("ADMIN_ENABLED", true),
		Port:    getEnv("ADMIN_PORT", "8099"),
	}
}
