package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for our application
type Config struct {
	Port                      string
	Origin                    string
	Environment               string
	LogLevel                  string
	JWTSecret                 string
	JWTRefreshSecret          string
	Database                  DatabaseConfig
	Redis                     RedisConfig
	Mailer                    MailerConfig
	WhatsApp                  WhatsAppConfig
	Uploads                   UploadConfig
	JWTExpirationMinutes      int
	JWTRefreshExpirationHours int
	VerificationTokenExpiry   int
	AuthLookupTimeout         time.Duration
	AppURL                    string
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// RedisConfig holds the optional Redis used to fan out chat events between instances.
// An empty Addr keeps the relay in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// MailerConfig holds email service configuration
type MailerConfig struct {
	MailerSendAPIKey string
	FromName         string
	FromEmail        string
}

// WhatsAppConfig holds the Twilio credentials used for WhatsApp notices.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// UploadConfig controls where attachments and reports are written and how they are served.
type UploadConfig struct {
	Dir          string
	PublicPrefix string
	MaxBytes     int64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "3306"),
		Username: getEnv("DB_USERNAME", "root"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "swasthya"),
	}

	// Build DSN (Data Source Name) for MySQL connection
	dbConfig.DSN = getEnv("DB_DSN", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		dbConfig.Username, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name))

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	redisConfig := RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
		Channel:  getEnv("REDIS_CHAT_CHANNEL", "swasthya:chat"),
	}

	mailerConfig := MailerConfig{
		MailerSendAPIKey: getEnv("MAILERSEND_API_KEY", ""),
		FromName:         getEnv("MAILER_FROM_NAME", "SwasthyaConnect"),
		FromEmail:        getEnv("MAILER_FROM_EMAIL", ""),
	}

	whatsAppConfig := WhatsAppConfig{
		AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		FromNumber: getEnv("TWILIO_WHATSAPP_FROM", ""),
	}

	maxUploadMB, err := getInt("UPLOAD_MAX_MB", 5)
	if err != nil {
		return nil, err
	}
	if maxUploadMB <= 0 {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_MB: must be positive")
	}
	uploadConfig := UploadConfig{
		Dir:          getEnv("UPLOAD_DIR", "uploads"),
		PublicPrefix: "/" + strings.Trim(getEnv("UPLOAD_PUBLIC_PREFIX", "/uploads"), "/"),
		MaxBytes:     int64(maxUploadMB) << 20,
	}

	jwtExpMinutes, err := getInt("JWT_EXPIRATION_MINUTES", 15)
	if err != nil {
		return nil, err
	}

	jwtRefreshExpHours, err := getInt("JWT_REFRESH_EXPIRATION_HOURS", 168) // 7 days
	if err != nil {
		return nil, err
	}

	verificationTokenExpiry, err := getInt("VERIFICATION_TOKEN_EXPIRY_HOURS", 24)
	if err != nil {
		return nil, err
	}

	authLookupTimeout, err := getDuration("AUTH_LOOKUP_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                      getEnv("PORT", "5000"),
		Origin:                    getEnv("ORIGIN", "http://localhost:5173"),
		Environment:               getEnv("APP_ENV", "development"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		JWTSecret:                 getEnv("JWT_SECRET", "default_jwt_secret"),
		JWTRefreshSecret:          getEnv("JWT_REFRESH_SECRET", "default_refresh_secret"),
		Database:                  dbConfig,
		Redis:                     redisConfig,
		Mailer:                    mailerConfig,
		WhatsApp:                  whatsAppConfig,
		Uploads:                   uploadConfig,
		JWTExpirationMinutes:      jwtExpMinutes,
		JWTRefreshExpirationHours: jwtRefreshExpHours,
		VerificationTokenExpiry:   verificationTokenExpiry,
		AuthLookupTimeout:         authLookupTimeout,
		AppURL:                    getEnv("APP_URL", "http://localhost:5000"),
	}, nil
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Helper function to get environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
