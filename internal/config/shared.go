package config

import "fmt"

// --- Shared Configs ---

type ServerConfig struct {
	HTTPPort string
	Name     string
}

type LogConfig struct {
	Level   string // debug, info, warn, error
	Format  string // json, console
	File    string // log file path, empty disables file output
	Console bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN builds the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

type RedisConfig struct {
	Host string
	Port string
}

// Addr returns host:port for the redis client
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LoadServerConfig loads the public server settings
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort: getEnv("SERVER_PORT", "8080"),
		Name:     "instant-games",
	}
}

// LoadLogConfig loads the logging settings
func LoadLogConfig() LogConfig {
	return LogConfig{
		Level:   getEnv("LOG_LEVEL", "info"),
		Format:  getEnv("LOG_FORMAT", "json"),
		File:    getEnv("LOG_FILE", ""),
		Console: getEnvBool("LOG_CONSOLE", true),
	}
}

// LoadDatabaseConfig loads the postgres settings
func LoadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "casino_user"),
		Password: getEnv("DB_PASSWORD", "casino_pass"),
		Name:     getEnv("DB_NAME", "casino_db"),
	}
}

// LoadRedisConfig loads the redis settings
func LoadRedisConfig() RedisConfig {
	return RedisConfig{
		Host: getEnv("REDIS_HOST", "localhost"),
		Port: getEnv("REDIS_PORT", "6379"),
	}
}
