package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	EnvAppEnv        = "STOQ_APP_ENV"
	EnvPort          = "STOQ_PORT"
	EnvDatabaseURL   = "STOQ_DATABASE_URL"
	EnvJWTSecret     = "STOQ_JWT_SECRET"
	EnvRedisAddr     = "STOQ_REDIS_ADDR"
	EnvAdminEmail    = "STOQ_ADMIN_EMAIL"
	EnvAdminPassword = "STOQ_ADMIN_PASSWORD"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Mail     MailConfig
	Payments PaymentsConfig
	Admin    AdminConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Auth.JWTSecret = strings.TrimSpace(cfg.Auth.JWTSecret)
	return &cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.App.Port)
}

type AppConfig struct {
	Env           string `envconfig:"STOQ_APP_ENV" default:"dev"`
	Port          string `envconfig:"STOQ_PORT" default:"8080"`
	LogLevel      string `envconfig:"STOQ_LOG_LEVEL" default:"info"`
	LogWarnStack  bool   `envconfig:"STOQ_LOG_WARN_STACK" default:"false"`
	AllowedOrigin string `envconfig:"STOQ_ALLOWED_ORIGIN" default:"http://localhost:5173"`
	FrontendURL   string `envconfig:"STOQ_FRONTEND_URL" default:"http://localhost:5173"`
	BackendURL    string `envconfig:"STOQ_BACKEND_URL" default:"http://localhost:8080"`
	// IANA name used for "today" boundaries in cash and dashboard figures.
	Timezone string `envconfig:"STOQ_TIMEZONE" default:"America/Sao_Paulo"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

func (a AppConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

type DBConfig struct {
	URL             string        `envconfig:"STOQ_DATABASE_URL"`
	MaxOpenConns    int           `envconfig:"STOQ_DB_MAX_OPEN_CONNS" default:"30"`
	MaxIdleConns    int           `envconfig:"STOQ_DB_MAX_IDLE_CONNS" default:"8"`
	ConnMaxLifetime time.Duration `envconfig:"STOQ_DB_CONN_MAX_LIFETIME" default:"30m"`
	AutoMigrate     bool          `envconfig:"STOQ_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	Addr      string        `envconfig:"STOQ_REDIS_ADDR"`
	Password  string        `envconfig:"STOQ_REDIS_PASSWORD"`
	DB        int           `envconfig:"STOQ_REDIS_DB" default:"0"`
	ReportTTL time.Duration `envconfig:"STOQ_REPORT_CACHE_TTL" default:"30s"`
}

type AuthConfig struct {
	JWTSecret         string        `envconfig:"STOQ_JWT_SECRET"`
	TokenTTL          time.Duration `envconfig:"STOQ_TOKEN_TTL" default:"168h"`
	LoginFailureDelay time.Duration `envconfig:"STOQ_LOGIN_FAILURE_DELAY" default:"500ms"`
	AttemptLimit      int           `envconfig:"STOQ_AUTH_ATTEMPT_LIMIT" default:"5"`
	AttemptWindow     time.Duration `envconfig:"STOQ_AUTH_ATTEMPT_WINDOW" default:"15m"`
}

type MailConfig struct {
	SMTPHost string `envconfig:"STOQ_SMTP_HOST"`
	SMTPPort int    `envconfig:"STOQ_SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"STOQ_SMTP_USER"`
	SMTPPass string `envconfig:"STOQ_SMTP_PASS"`
	From     string `envconfig:"STOQ_MAIL_FROM" default:"Stoq+ <no-reply@stoqplus.app>"`
}

func (m MailConfig) Enabled() bool {
	return m.SMTPHost != ""
}

type PaymentsConfig struct {
	AccessToken     string `envconfig:"STOQ_MP_ACCESS_TOKEN"`
	APIBaseURL      string `envconfig:"STOQ_MP_API_URL" default:"https://api.mercadopago.com"`
	NotificationURL string `envconfig:"STOQ_MP_NOTIFICATION_URL"`
}

type AdminConfig struct {
	Email    string `envconfig:"STOQ_ADMIN_EMAIL" default:"admin@stoqplus.app"`
	Password string `envconfig:"STOQ_ADMIN_PASSWORD"`
	Name     string `envconfig:"STOQ_ADMIN_NAME" default:"Super Admin"`
}
