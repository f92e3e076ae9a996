package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	AI       AIConfig       `yaml:"ai"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Drafts   DraftsConfig   `yaml:"drafts"`
	CORS     CORSConfig     `yaml:"cors"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"120s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type DatabaseConfig struct {
	Driver      string `yaml:"driver"       env:"DATABASE_DRIVER"       env-default:"postgres"`
	Host        string `yaml:"host"         env:"DATABASE_HOST"         env-default:"localhost"`
	Port        int    `yaml:"port"         env:"DATABASE_PORT"`
	User        string `yaml:"user"         env:"DATABASE_USER"`
	Password    string `yaml:"password"     env:"DATABASE_PASSWORD"`
	Name        string `yaml:"name"         env:"DATABASE_NAME"         env-default:"verdict"`
	SSLMode     string `yaml:"sslmode"      env:"DATABASE_SSLMODE"      env-default:"disable"`
	MaxOpen     int    `yaml:"max_open"     env:"DATABASE_MAX_OPEN"     env-default:"25"`
	MaxIdle     int    `yaml:"max_idle"     env:"DATABASE_MAX_IDLE"     env-default:"10"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DATABASE_AUTO_MIGRATE" env-default:"true"`
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"         env:"AUTH_JWT_SECRET"`
	JWTIssuer        string        `yaml:"jwt_issuer"         env:"AUTH_JWT_ISSUER"         env-default:"verdict"`
	AccessTokenTTL   time.Duration `yaml:"access_token_ttl"   env:"AUTH_ACCESS_TOKEN_TTL"   env-default:"15m"`
	RefreshTokenTTL  time.Duration `yaml:"refresh_token_ttl"  env:"AUTH_REFRESH_TOKEN_TTL"  env-default:"720h"`
	PasswordHashCost int           `yaml:"password_hash_cost" env:"AUTH_PASSWORD_HASH_COST" env-default:"12"`
	// Per client address on sign-in, sign-up and refresh. Zero disables it.
	AttemptBurst      int `yaml:"attempt_burst"       env:"AUTH_ATTEMPT_BURST"       env-default:"10"`
	AttemptsPerMinute int `yaml:"attempts_per_minute" env:"AUTH_ATTEMPTS_PER_MINUTE" env-default:"10"`
}

type AIConfig struct {
	Provider        string `yaml:"provider"          env:"AI_PROVIDER"          env-default:"gemini"`
	APIKey          string `yaml:"api_key"           env:"AI_API_KEY"`
	Model           string `yaml:"model"             env:"AI_MODEL"`
	FallbackModel   string `yaml:"fallback_model"    env:"AI_FALLBACK_MODEL"`
	MaxOutputTokens int    `yaml:"max_output_tokens" env:"AI_MAX_OUTPUT_TOKENS" env-default:"2048"`
}

type AnalysisConfig struct {
	MinObjectionLength int `yaml:"min_objection_length" env:"ANALYSIS_MIN_OBJECTION_LENGTH" env-default:"15"`
}

type DraftsConfig struct {
	Backend string        `yaml:"backend" env:"DRAFTS_BACKEND" env-default:"memory"`
	TTL     time.Duration `yaml:"ttl"     env:"DRAFTS_TTL"     env-default:"24h"`
	Minio   MinioConfig   `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"   env:"MINIO_ENDPOINT"`
	AccessKey  string `yaml:"accessKey"  env:"MINIO_ACCESS_KEY"`
	SecretKey  string `yaml:"secretKey"  env:"MINIO_SECRET_KEY"`
	BucketName string `yaml:"bucketName" env:"MINIO_BUCKET"     env-default:"verdict-drafts"`
	Region     string `yaml:"region"     env:"MINIO_REGION"`
	UseSSL     bool   `yaml:"useSSL"     env:"MINIO_USE_SSL"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
}

// Default model identifiers per provider: primary, then the more widely
// available fallback.
var defaultModels = map[string][2]string{
	ProviderGemini: {"gemini-3-pro-preview", "gemini-2.5-flash"},
	ProviderOpenAI: {"gpt-4o", "gpt-4o-mini"},
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Models returns the primary and fallback model for the configured provider.
func (c AIConfig) Models() (string, string) {
	d := defaultModels[c.Provider]
	primary, fallback := c.Model, c.FallbackModel
	if primary == "" {
		primary = d[0]
	}
	if fallback == "" {
		fallback = d[1]
	}
	if fallback == primary {
		fallback = ""
	}
	return primary, fallback
}

// MySQLDSN builds the go-sql-driver DSN.
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		port,
		c.Database.Name,
	)
}

// PostgresDSN builds the lib/pq connection URL.
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}
