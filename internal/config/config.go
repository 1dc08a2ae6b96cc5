package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries every runtime knob for the service. Business code never
// reads the environment directly; the parsed struct is passed into
// constructors.
type Config struct {
	AppName string `env:"AUTHCORE_APP_NAME" envDefault:"authcore-api"`
	AppEnv  string `env:"AUTHCORE_APP_ENV" envDefault:"local"`

	HTTPAddr        string        `env:"AUTHCORE_HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"AUTHCORE_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	PGDSN string `env:"AUTHCORE_PG_DSN"`

	JWTSecret  string        `env:"AUTHCORE_JWT_SECRET"`
	JWTIssuer  string        `env:"AUTHCORE_JWT_ISSUER" envDefault:"authcore"`
	AccessTTL  time.Duration `env:"AUTHCORE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"AUTHCORE_REFRESH_TTL" envDefault:"168h"`

	BcryptCost int `env:"AUTHCORE_BCRYPT_COST" envDefault:"10"`

	VerificationTTL time.Duration `env:"AUTHCORE_VERIFICATION_TTL" envDefault:"24h"`
	ResetTTL        time.Duration `env:"AUTHCORE_RESET_TTL" envDefault:"1h"`

	NATSURL            string `env:"AUTHCORE_NATS_URL"`
	NATSEmailSubject   string `env:"AUTHCORE_NATS_EMAIL_SUBJECT" envDefault:"notify.email"`
	NATSEventSubject   string `env:"AUTHCORE_NATS_EVENT_SUBJECT" envDefault:"identity.events"`
	SuperAdminRole     string `env:"AUTHCORE_SUPER_ADMIN_ROLE" envDefault:"super_admin"`
	TenantAdminRole    string `env:"AUTHCORE_TENANT_ADMIN_ROLE" envDefault:"tenant_admin"`
	RateLimitPerSecond int    `env:"AUTHCORE_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst     int    `env:"AUTHCORE_RATE_LIMIT_BURST" envDefault:"20"`
}

// Load parses configuration from the environment, reading a .env file when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad exits on configuration errors. Intended for main packages only.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
