/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the csr-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort          string `mapstructure:"SERVER_PORT"`
	DatabaseURL         string `mapstructure:"DATABASE_URL"`
	RedisURL            string `mapstructure:"REDIS_URL"`
	RedisSnapshotPrefix string `mapstructure:"REDIS_SNAPSHOT_PREFIX"`
	RabbitMQURL         string `mapstructure:"RABBITMQ_URL"`
	JWTSecret           string `mapstructure:"JWT_SECRET"`
	ThresholdScanCron   string `mapstructure:"THRESHOLD_SCAN_CRON"`
	SnapshotTTLMinutes  int    `mapstructure:"SNAPSHOT_TTL_MINUTES"`
	PlatformFeeBps      int64  `mapstructure:"PLATFORM_FEE_BPS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_SNAPSHOT_PREFIX", "csr:kpi_snapshot")
	viper.SetDefault("THRESHOLD_SCAN_CRON", "*/15 * * * *")
	viper.SetDefault("SNAPSHOT_TTL_MINUTES", 5)
	viper.SetDefault("PLATFORM_FEE_BPS", 0)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CSR_REDIS_URL")
	_ = viper.BindEnv("REDIS_SNAPSHOT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "CSR_SERVICE_JWT_SECRET")
	_ = viper.BindEnv("THRESHOLD_SCAN_CRON")
	_ = viper.BindEnv("SNAPSHOT_TTL_MINUTES")
	_ = viper.BindEnv("PLATFORM_FEE_BPS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		config.JWTSecret = strings.TrimSpace(os.Getenv("CSR_SERVICE_JWT_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisSnapshotPrefix = strings.TrimSpace(config.RedisSnapshotPrefix)
	if config.RedisSnapshotPrefix == "" {
		config.RedisSnapshotPrefix = "csr:kpi_snapshot"
	}

	if config.SnapshotTTLMinutes <= 0 {
		config.SnapshotTTLMinutes = 5
	}
	if config.PlatformFeeBps < 0 {
		log.Printf("level=warn component=config msg=\"negative platform fee configured; coercing to zero\" fee_bps=%d", config.PlatformFeeBps)
		config.PlatformFeeBps = 0
	}
	if strings.TrimSpace(config.ThresholdScanCron) == "" {
		config.ThresholdScanCron = "*/15 * * * *"
	}

	return
}
