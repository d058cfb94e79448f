package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig Postgres connection settings (drafts repository)
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds a lib/pq key=value connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis settings (schema cache, preferences, event stream)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig broker settings for lifecycle events
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Config visakal-form service configuration
type Config struct {
	HTTP struct {
		Addr string
	}

	// API is the visa application backend the form engine talks to
	API struct {
		BaseURL string
		Timeout time.Duration
	}

	DBEnabled bool
	Database  DatabaseConfig

	RedisEnabled bool
	Redis        RedisConfig

	Log struct {
		Level  string
		Format string
	}

	// Events: "none" | "mqtt" | "redis"
	Events struct {
		Mode   string
		Stream string
	}
	MQTT MQTTConfig

	PayMe        PayMeConfig
	ExchangeRate ExchangeRateConfig

	Form struct {
		SchemaCacheTTL time.Duration
		DraftTTL       time.Duration
		MaxUploadBytes int64
		// JanitorSchedule is a robfig/cron spec for idle-session eviction and draft purge
		JanitorSchedule string
		// UploadRate per client and second, 0 disables throttling
		UploadRate  float64
		UploadBurst int
	}
}

// PayMeConfig direct gateway credentials; all three of BaseURL/MerchantID/SecretKey must be set
type PayMeConfig struct {
	BaseURL      string
	MerchantID   string
	SecretKey    string
	CheckoutPath string
	// PublicURL is the origin used to build success/cancel return links
	PublicURL string
}

// ExchangeRateConfig USD->ILS rate source
type ExchangeRateConfig struct {
	URL         string
	DefaultRate float64
	Timeout     time.Duration
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.API.BaseURL = getEnv("VISA_API_BASE_URL", "http://localhost:8000")
	cfg.API.Timeout = time.Duration(parseInt(getEnv("VISA_API_TIMEOUT_SECONDS", "30"), 30)) * time.Second

	// Drafts fall back to the in-memory repo when the DB is disabled or unreachable.
	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "visakal")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "true") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Events.Mode = getEnv("EVENTS_MODE", "none")
	cfg.Events.Stream = getEnv("EVENTS_STREAM", "visakal:application-events")
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "visakal-form")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "visakal/applications")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.PayMe.BaseURL = getEnv("PAYME_BASE_URL", "")
	cfg.PayMe.MerchantID = getEnv("PAYME_MERCHANT_ID", "")
	cfg.PayMe.SecretKey = getEnv("PAYME_SECRET_KEY", "")
	cfg.PayMe.CheckoutPath = getEnv("PAYME_CHECKOUT_PATH", "/generate-sale/")
	cfg.PayMe.PublicURL = getEnv("PUBLIC_URL", "http://localhost:5173")

	cfg.ExchangeRate.URL = getEnv("EXCHANGE_RATE_URL", "https://api.frankfurter.app/latest")
	cfg.ExchangeRate.DefaultRate = parseFloat(getEnv("EXCHANGE_RATE_DEFAULT", "3.7"), 3.7)
	cfg.ExchangeRate.Timeout = 5 * time.Second

	cfg.Form.SchemaCacheTTL = time.Duration(parseInt(getEnv("FORM_SCHEMA_CACHE_SECONDS", "300"), 300)) * time.Second
	cfg.Form.DraftTTL = time.Duration(parseInt(getEnv("FORM_DRAFT_TTL_HOURS", "72"), 72)) * time.Hour
	cfg.Form.MaxUploadBytes = int64(parseInt(getEnv("FORM_MAX_UPLOAD_MB", "20"), 20)) << 20
	cfg.Form.JanitorSchedule = getEnv("FORM_JANITOR_SCHEDULE", "@every 5m")
	cfg.Form.UploadRate = parseFloat(getEnv("FORM_UPLOAD_RATE", "2"), 2)
	cfg.Form.UploadBurst = parseInt(getEnv("FORM_UPLOAD_BURST", "6"), 6)

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
