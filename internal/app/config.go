package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from a .env
// file, environment variables (CHECKOUT_ prefix), flags, or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Redis       RedisConfig
	Files       FilesConfig
	Notify      NotifyConfig
	Payment     PaymentConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig controls bearer token verification and issuance.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" usage:"HS256 secret for bearer tokens" flag:"jwt-secret"`
	Issuer    string        `default:"checkout" usage:"Expected and issued token issuer"`
	TokenTTL  time.Duration `default:"24h" usage:"Lifetime of tokens issued after phone verification"`
}

// RedisConfig selects the one-time-code store. An empty Addr keeps codes in
// process memory.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address host:port"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
	Prefix   string `default:"otp:" usage:"Key prefix for one-time codes"`
}

// FilesConfig selects where variation image files are removed from.
type FilesConfig struct {
	Backend   string      `default:"local" usage:"Image file backend: local, minio or none"`
	Dir       string      `default:"uploads" usage:"Local upload directory"`
	URLPrefix string      `default:"/uploads" usage:"Public URL prefix of local uploads"`
	MinIO     MinIOConfig `env:"MINIO" flag:"minio"`
}

// MinIOConfig addresses the S3-compatible image bucket.
type MinIOConfig struct {
	Endpoint  string `default:"" usage:"MinIO endpoint host:port"`
	AccessKey string `default:"" usage:"MinIO access key"`
	SecretKey string `default:"" usage:"MinIO secret key"`
	Bucket    string `default:"images" usage:"MinIO bucket"`
	UseSSL    bool   `default:"false" usage:"Use TLS for MinIO"`
}

// NotifyConfig controls order notifications.
type NotifyConfig struct {
	AdminEmail  string        `default:"" usage:"Recipient of new order alerts"`
	Workers     int           `default:"2" usage:"Notification worker goroutines"`
	QueueSize   int           `default:"256" usage:"Pending notification capacity"`
	TaskTimeout time.Duration `default:"10s" usage:"Timeout of one notification task"`
	SMTP        SMTPConfig
	Kafka       KafkaConfig
}

// SMTPConfig addresses the mail relay. An empty Host logs mail instead.
type SMTPConfig struct {
	Host     string `default:"" usage:"SMTP host"`
	Port     int    `default:"587" usage:"SMTP port"`
	Username string `default:"" usage:"SMTP username"`
	Password string `default:"" usage:"SMTP password"`
	From     string `default:"orders@localhost" usage:"Sender address"`
}

// KafkaConfig addresses the order event topic. Empty Brokers logs events
// instead.
type KafkaConfig struct {
	Brokers string `default:"" usage:"Comma-separated Kafka brokers"`
	Topic   string `default:"order-events" usage:"Order event topic"`
}

// PaymentConfig holds payment gateway credentials.
type PaymentConfig struct {
	BaseURL   string `default:"https://api.razorpay.com" usage:"Gateway base URL"`
	KeyID     string `default:"" usage:"Gateway key id"`
	KeySecret string `default:"" usage:"Gateway key secret"`
	Currency  string `default:"INR" usage:"Order currency"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env (when present), then environment variables and YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided variables with standard names
// (DATABASE_URL, PORT, JWT_SECRET) onto the CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("JWT secret is required: set CHECKOUT_AUTH_JWT_SECRET or JWT_SECRET")
	}
	switch strings.ToLower(c.Files.Backend) {
	case "local", "none":
	case "minio":
		if c.Files.MinIO.Endpoint == "" {
			return errors.New("minio file backend requires CHECKOUT_FILES_MINIO_ENDPOINT")
		}
	default:
		return errors.Errorf("unknown file backend %q", c.Files.Backend)
	}
	return nil
}
