package config

import (
	"os"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Server   ServerConfig   `mapstructure:"server"`
	Security SecurityConfig `mapstructure:"security"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// OpenAIConfig holds the completion provider configuration
type OpenAIConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	DeploymentName string `mapstructure:"deployment_name"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// SecurityConfig holds the shared API key expected in X-API-Key headers
type SecurityConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig selects the persistence backend.
// Driver is "sqlite" (Path) or "postgres" (DSN).
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig holds the optional recent-message cache configuration.
// An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads the configuration from config.yaml in the working directory,
// or from the file named by the CONFIG_PATH environment variable.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetDefault("openai.model", "gpt-4")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "careai.db")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Deployment returns the model identifier sent to the provider:
// the Azure-style deployment name when set, the model name otherwise.
func (c OpenAIConfig) Deployment() string {
	if c.DeploymentName != "" {
		return c.DeploymentName
	}
	return c.Model
}
