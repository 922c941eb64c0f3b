package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MinJWTSecretBytes is the smallest accepted HMAC signing secret (256 bits).
const MinJWTSecretBytes = 32

var ErrJWTSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinJWTSecretBytes)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	JWT         JWTConfig         `yaml:"jwt"`
	Auth        AuthConfig        `yaml:"auth"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Redis       RedisConfig       `yaml:"redis"`
	App         AppConfig         `yaml:"app"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Log         LogConfig         `yaml:"log"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres, memory
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret             string `yaml:"secret"`
	AccessTokenMinutes int    `yaml:"access_token_minutes"`
	RefreshTokenDays   int    `yaml:"refresh_token_days"`
}

// AuthConfig holds credential and single-use token policy.
type AuthConfig struct {
	// AdminEmails is the allow-list of identities permitted to hold the admin role.
	AdminEmails              []string `yaml:"admin_emails"`
	VerificationTokenMinutes int      `yaml:"verification_token_minutes"`
	ResendVerificationHours  int      `yaml:"resend_verification_hours"`
	ResetTokenMinutes        int      `yaml:"reset_token_minutes"`
	PasswordMinLength        int      `yaml:"password_min_length"`
	BcryptCost               int      `yaml:"bcrypt_cost"`
	MaxFailedLogins          int      `yaml:"max_failed_logins"`
	FailedLoginWindowMinutes int      `yaml:"failed_login_window_minutes"`
}

type SMTPConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	From        string   `yaml:"from"`
	UseTLS      bool     `yaml:"use_tls"`
	AdminNotify []string `yaml:"admin_notify"`
}

// RedisConfig for the optional mail queue and login throttling
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AppConfig struct {
	Name           string   `yaml:"name"`
	FrontendURL    string   `yaml:"frontend_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultTokenGraceHours keeps expired token slots for a week so redemption
// still reports them as expired rather than unknown.
const DefaultTokenGraceHours = 168

type MaintenanceConfig struct {
	CleanupCron      string `yaml:"cleanup_cron"`
	LogRetentionDays int    `yaml:"log_retention_days"`
	// TokenGraceHours is how long past its expiry a token slot survives the sweep.
	TokenGraceHours int `yaml:"token_grace_hours"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	cfg.applyFallbacks()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "authority.db",
		},
		JWT: JWTConfig{
			AccessTokenMinutes: 15,
			RefreshTokenDays:   7,
		},
		Auth: AuthConfig{
			VerificationTokenMinutes: 15,
			ResendVerificationHours:  24,
			ResetTokenMinutes:        15,
			PasswordMinLength:        8,
			MaxFailedLogins:          5,
			FailedLoginWindowMinutes: 15,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		App: AppConfig{
			Name:           "3D Machines",
			FrontendURL:    "http://localhost:3000",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
		Maintenance: MaintenanceConfig{
			CleanupCron:      "@every 1h",
			LogRetentionDays: 30,
			TokenGraceHours:  DefaultTokenGraceHours,
		},
	}
}

// Validate reports configuration errors that must stop the process at startup.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWT.Secret) < MinJWTSecretBytes {
		errs = append(errs, ErrJWTSecretTooShort)
	}
	if c.JWT.AccessTokenMinutes <= 0 {
		errs = append(errs, errors.New("jwt.access_token_minutes must be positive"))
	}
	if c.JWT.RefreshTokenDays <= 0 {
		errs = append(errs, errors.New("jwt.refresh_token_days must be positive"))
	}
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: %s", c.Database.Driver))
	}
	return errors.Join(errs...)
}

// IsAdminEmail reports whether email is on the admin allow-list (case-insensitive).
func (a *AuthConfig) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range a.AdminEmails {
		if strings.ToLower(strings.TrimSpace(e)) == email {
			return true
		}
	}
	return false
}

func (c *Config) applyFallbacks() {
	if c.JWT.AccessTokenMinutes <= 0 {
		c.JWT.AccessTokenMinutes = 15
	}
	if c.JWT.RefreshTokenDays <= 0 {
		c.JWT.RefreshTokenDays = 7
	}
	if c.Auth.PasswordMinLength <= 0 {
		c.Auth.PasswordMinLength = 8
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Maintenance.TokenGraceHours < c.Auth.ResendVerificationHours {
		c.Maintenance.TokenGraceHours = max(c.Auth.ResendVerificationHours, DefaultTokenGraceHours)
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if admins := os.Getenv("ADMIN_EMAILS"); admins != "" {
		c.Auth.AdminEmails = splitList(admins)
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		c.SMTP.Enabled = true
		c.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.SMTP.Port = p
		}
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		c.SMTP.Username = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		c.SMTP.Password = pass
	}
	if from := os.Getenv("SMTP_FROM"); from != "" {
		c.SMTP.From = from
	}
	if appURL := os.Getenv("APP_URL"); appURL != "" {
		c.App.FrontendURL = strings.TrimRight(appURL, "/")
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}
