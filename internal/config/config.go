package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	Port           string
	Environment    string
	MongoURI       string
	DBName         string
	JWTSecret      string
	AccessTokenTTL time.Duration
	CORSOrigins    []string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	PaymentTestMode       bool
	GatewayTimeout        time.Duration

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	TextBeltURL      string
	TextBeltKey      string

	NotifyTimeout   time.Duration
	NotifyWorkers   int
	NotifyQueueSize int
	AMQPURL         string
	AMQPQueue       string

	StrictStatusTransitions bool

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
	PaymentRateRPS   float64
	PaymentRateBurst int
	RateLimitTTL     time.Duration
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = Config{
		Port:           getEnvOrDefault("PORT", "5000"),
		Environment:    getEnvOrDefault("APP_ENV", "production"),
		MongoURI:       getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		DBName:         getEnvOrDefault("DB_NAME", "food-delivery"),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
		AccessTokenTTL: getDurationEnv("ACCESS_TOKEN_TTL", 30, 24*time.Hour),
		CORSOrigins:    getListEnv("CORS_ORIGINS", []string{"http://localhost:3000"}),

		RazorpayKeyID:         getEnvOrDefault("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     getEnvOrDefault("RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: getEnvOrDefault("RAZORPAY_WEBHOOK_SECRET", ""),
		PaymentTestMode:       getBoolEnv("PAYMENT_TEST_MODE", false),
		GatewayTimeout:        getDurationEnv("GATEWAY_TIMEOUT", 10, time.Second),

		SMTPHost: getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort: getIntEnv("SMTP_PORT", 587),
		SMTPUser: getEnvOrDefault("SMTP_USER", ""),
		SMTPPass: getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom: getEnvOrDefault("SMTP_FROM", ""),

		TwilioAccountSID: getEnvOrDefault("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnvOrDefault("TWILIO_AUTH_TOKEN", ""),
		TwilioFrom:       getEnvOrDefault("TWILIO_FROM", ""),
		TextBeltURL:      getEnvOrDefault("TEXTBELT_URL", ""),
		TextBeltKey:      getEnvOrDefault("TEXTBELT_KEY", ""),

		NotifyTimeout:   getDurationEnv("NOTIFY_TIMEOUT", 10, time.Second),
		NotifyWorkers:   getIntEnv("NOTIFY_WORKERS", 2),
		NotifyQueueSize: getIntEnv("NOTIFY_QUEUE_SIZE", 100),
		AMQPURL:         getEnvOrDefault("AMQP_URL", ""),
		AMQPQueue:       getEnvOrDefault("AMQP_QUEUE", "order_notifications"),

		StrictStatusTransitions: getBoolEnv("STRICT_STATUS_TRANSITIONS", false),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getFloatEnv("RATE_LIMIT_RPS", 100.0/60),
		RateLimitBurst:   getIntEnv("RATE_LIMIT_BURST", 100),
		PaymentRateRPS:   getFloatEnv("RATE_LIMIT_PAYMENT_RPS", 10.0/60),
		PaymentRateBurst: getIntEnv("RATE_LIMIT_PAYMENT_BURST", 10),
		RateLimitTTL:     getDurationEnv("RATE_LIMIT_TTL", 15, time.Minute),
	}

	if AppEnv.JWTSecret == "" {
		log.Println("[CONFIG] [WARN] JWT_SECRET is empty; tokens cannot be issued or verified")
	}
}

func (c Config) Development() bool {
	return c.Environment == "development"
}

// GatewayConfigured reports whether both Razorpay API credentials are set.
func (c Config) GatewayConfigured() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

func (c Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPass != ""
}

func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}
