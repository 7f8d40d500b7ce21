// Package config loads application configuration from config files,
// environment variables and .env files, and resolves fabric
// definitions with their credentials. Credentials live only in the
// environment; they are overlaid onto fabrics at lookup time and never
// persisted.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FabricConfig declares one fabric in the config file. Token env names
// default to FABSYNC_<ID>_REPO_TOKEN and FABSYNC_<ID>_CLUSTER_TOKEN.
type FabricConfig struct {
	ID              string `mapstructure:"id"`
	Name            string `mapstructure:"name"`
	RepoURL         string `mapstructure:"repo_url"`
	RepoBranch      string `mapstructure:"repo_branch"`
	ClusterURL      string `mapstructure:"cluster_url"`
	WorkDir         string `mapstructure:"work_dir"`
	RepoTokenEnv    string `mapstructure:"repo_token_env"`
	ClusterTokenEnv string `mapstructure:"cluster_token_env"`
}

// Config holds the application configuration loaded from various
// sources including config files, environment variables, and .env
// files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Server configuration
	Host        string
	Port        int
	APIKey      string
	RateLimit   int
	CORSEnabled bool
	CORSOrigins []string

	// Storage configuration
	RegistryPath string // SQLite file; empty selects the in-memory registry
	DataDir      string // base directory for fabric working trees

	// Reconciliation configuration
	SyncInterval time.Duration // scheduled sync; 0 disables

	// Declared fabrics
	Fabrics []FabricConfig

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// Load reads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables
// 3. .env files
// 4. Config file (~/.fabsync.yaml)
// 5. Defaults
func Load() (*Config, error) {
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FABSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".fabsync")
		}
	}

	// Missing config file is fine; everything has a default.
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),

		ConfigFile: viper.ConfigFileUsed(),

		Host:        stringOr("host", "localhost"),
		Port:        intOr("port", 8080),
		APIKey:      viper.GetString("api_key"),
		RateLimit:   intOr("rate_limit", 100),
		CORSEnabled: viper.GetBool("cors_enabled"),
		CORSOrigins: viper.GetStringSlice("cors_origins"),

		RegistryPath: viper.GetString("registry_path"),
		DataDir:      stringOr("data_dir", defaultDataDir()),

		SyncInterval: viper.GetDuration("sync_interval"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	if err := viper.UnmarshalKey("fabrics", &config.Fabrics); err != nil {
		return nil, err
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags so
// flags take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fabsync"
	}
	return home + "/.fabsync/fabrics"
}

func stringOr(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := viper.GetInt(key); v != 0 {
		return v
	}
	return fallback
}

// getEnvOrDefault returns the environment variable value or the
// default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
