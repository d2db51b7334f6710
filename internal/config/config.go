// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	Env         string

	HTTPPort        string
	GRPCHealthPort  string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	MongoURI    string
	MongoDBName string

	RedisAddr     string
	RedisPassword string

	// empty disables settlement events
	KafkaBrokers []string
	KafkaTopic   string

	PhonePeEnv           string
	PhonePeClientID      string
	PhonePeClientSecret  string
	PhonePeClientVersion string
	GatewayTimeout       time.Duration
	MerchantRedirectURL  string
	ClientURL            string

	LegacyCartFallback bool
	AuditPageSize      int
}

// Load collects configuration from the environment with defaults. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "verto"),
		Env:         getEnv("ENV", "development"),

		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCHealthPort:  getEnv("GRPC_HEALTH_PORT", "50051"),
		RequestTimeout:  getEnvAsSeconds("REQUEST_TIMEOUT", 30),
		ShutdownTimeout: getEnvAsSeconds("SHUTDOWN_TIMEOUT", 10),

		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDBName: getEnv("MONGO_DB_NAME", "verto"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order.settled"),

		PhonePeEnv:           strings.ToUpper(getEnv("PHONEPE_ENV", "UAT")),
		PhonePeClientID:      getEnv("PHONEPE_CLIENT_ID", ""),
		PhonePeClientSecret:  getEnv("PHONEPE_CLIENT_SECRET", ""),
		PhonePeClientVersion: getEnv("PHONEPE_CLIENT_VERSION", "1"),
		GatewayTimeout:       getEnvAsSeconds("GATEWAY_TIMEOUT", 15),
		MerchantRedirectURL:  getEnv("MERCHANT_REDIRECT_URL", "http://localhost:8080/payment/redirect"),
		ClientURL:            getEnv("CLIENT_URL", ""),

		LegacyCartFallback: getEnvAsBool("LEGACY_CART_FALLBACK", true),
		AuditPageSize:      getEnvAsInt("AUDIT_PAGE_SIZE", 200),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
