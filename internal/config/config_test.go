package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "HOLD_SWEEP_SCHEDULE")
	unsetEnvWithCleanup(t, "GATEWAY_VERSION")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.HoldSweepSchedule != "*/5 * * * *" {
		t.Errorf("expected default sweep schedule, got %q", cfg.HoldSweepSchedule)
	}
	if cfg.GatewayVersion != "2.1.0" {
		t.Errorf("expected default gateway version 2.1.0, got %q", cfg.GatewayVersion)
	}
	if cfg.PaymentRateLimit != 30 || cfg.CallbackRateLimit != 120 {
		t.Errorf("unexpected default rate limits: payment=%d callback=%d", cfg.PaymentRateLimit, cfg.CallbackRateLimit)
	}
}

func TestLoadConfig_PortEnvOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NegativeRateLimitsCoercedToZero(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE", "-5")
	setEnvWithCleanup(t, "CALLBACK_RATE_LIMIT_PER_MINUTE", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PaymentRateLimit != 0 || cfg.CallbackRateLimit != 0 {
		t.Fatalf("expected negative limits coerced to zero, got payment=%d callback=%d", cfg.PaymentRateLimit, cfg.CallbackRateLimit)
	}
}

func TestLoadConfig_TrimsGatewayCredentials(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "GATEWAY_SECRET_KEY", "  secret-with-space  ")
	setEnvWithCleanup(t, "GATEWAY_MERCHANT_CODE", " MERCH01 ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GatewaySecret != "secret-with-space" {
		t.Errorf("expected trimmed secret, got %q", cfg.GatewaySecret)
	}
	if cfg.GatewayMerchant != "MERCH01" {
		t.Errorf("expected trimmed merchant code, got %q", cfg.GatewayMerchant)
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
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
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
			os.Setenv(key, prev)
		}
	})
}
