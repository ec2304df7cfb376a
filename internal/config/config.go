/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * Mutable business rates (late fee per day, one-way fee percent, deposit hold
 * days) deliberately live in the system_settings table, not here: staff can
 * change them between requests and every calculation re-reads them.
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

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	RedisRateLimit    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	NotificationTopic string `mapstructure:"NOTIFICATION_EXCHANGE"`
	GatewayBaseURL    string `mapstructure:"GATEWAY_BASE_URL"`
	GatewayMerchant   string `mapstructure:"GATEWAY_MERCHANT_CODE"`
	GatewaySecret     string `mapstructure:"GATEWAY_SECRET_KEY"`
	GatewayVersion    string `mapstructure:"GATEWAY_VERSION"`
	GatewayReturnURL  string `mapstructure:"GATEWAY_RETURN_URL"`
	StaffJWTSecret    string `mapstructure:"STAFF_JWT_SECRET"`
	StaffJWTIssuer    string `mapstructure:"STAFF_JWT_ISSUER"`
	BookingServiceURL string `mapstructure:"BOOKING_SERVICE_URL"`
	FleetServiceURL   string `mapstructure:"FLEET_SERVICE_URL"`
	InternalAPIKey    string `mapstructure:"INTERNAL_API_KEY"`
	EvidenceDir       string `mapstructure:"EVIDENCE_DIR"`
	HoldSweepSchedule string `mapstructure:"HOLD_SWEEP_SCHEDULE"`
	PaymentRateLimit  int    `mapstructure:"PAYMENT_RATE_LIMIT_PER_MINUTE"`
	CallbackRateLimit int    `mapstructure:"CALLBACK_RATE_LIMIT_PER_MINUTE"`
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
	viper.SetDefault("NOTIFICATION_EXCHANGE", "rentiva.events")
	viper.SetDefault("GATEWAY_BASE_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	viper.SetDefault("GATEWAY_VERSION", "2.1.0")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "rentiva:rate_limit")
	// Every five minutes; read-time promotion stays the correctness fallback.
	viper.SetDefault("HOLD_SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("PAYMENT_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("CALLBACK_RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("EVIDENCE_DIR", "/var/lib/rentiva/evidence")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_EXCHANGE")
	_ = viper.BindEnv("GATEWAY_BASE_URL")
	_ = viper.BindEnv("GATEWAY_MERCHANT_CODE")
	_ = viper.BindEnv("GATEWAY_SECRET_KEY")
	_ = viper.BindEnv("GATEWAY_VERSION")
	_ = viper.BindEnv("GATEWAY_RETURN_URL")
	_ = viper.BindEnv("STAFF_JWT_SECRET")
	_ = viper.BindEnv("STAFF_JWT_ISSUER")
	_ = viper.BindEnv("BOOKING_SERVICE_URL")
	_ = viper.BindEnv("FLEET_SERVICE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("EVIDENCE_DIR")
	_ = viper.BindEnv("HOLD_SWEEP_SCHEDULE")
	_ = viper.BindEnv("PAYMENT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CALLBACK_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
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

	config.GatewaySecret = strings.TrimSpace(config.GatewaySecret)
	config.GatewayMerchant = strings.TrimSpace(config.GatewayMerchant)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimit = strings.TrimSpace(config.RedisRateLimit)
	if config.RedisRateLimit == "" {
		config.RedisRateLimit = "rentiva:rate_limit"
	}

	if config.PaymentRateLimit < 0 {
		log.Printf("level=warn component=config msg=\"negative payment rate limit configured; coercing to zero\" limit=%d", config.PaymentRateLimit)
		config.PaymentRateLimit = 0
	}
	if config.CallbackRateLimit < 0 {
		log.Printf("level=warn component=config msg=\"negative callback rate limit configured; coercing to zero\" limit=%d", config.CallbackRateLimit)
		config.CallbackRateLimit = 0
	}
	if strings.TrimSpace(config.HoldSweepSchedule) == "" {
		config.HoldSweepSchedule = "*/5 * * * *"
	}

	return
}
