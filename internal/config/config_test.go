package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesJWTSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	setEnvWithCleanup(t, "CSR_SERVICE_JWT_SECRET", "alias-only-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "alias-only-secret" {
		t.Fatalf("expected JWTSecret from alias env var, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_JWTSecretTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "primary-secret")
	setEnvWithCleanup(t, "CSR_SERVICE_JWT_SECRET", "alias-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "primary-secret" {
		t.Fatalf("expected JWTSecret to prioritize JWT_SECRET, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_NegativeFeeCoercedToZero(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PLATFORM_FEE_BPS", "-25")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PlatformFeeBps != 0 {
		t.Fatalf("expected negative fee to coerce to 0, got %d", cfg.PlatformFeeBps)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SNAPSHOT_TTL_MINUTES")
	unsetEnvWithCleanup(t, "THRESHOLD_SCAN_CRON")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SnapshotTTLMinutes != 5 {
		t.Fatalf("expected default snapshot TTL of 5 minutes, got %d", cfg.SnapshotTTLMinutes)
	}
	if cfg.ThresholdScanCron != "*/15 * * * *" {
		t.Fatalf("expected default scan schedule, got %q", cfg.ThresholdScanCron)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
