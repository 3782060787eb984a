package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DBDriver          string
	DBDSN             string
	DBConnectAttempts int

	ServerPort    string
	ServerMode    string
	SessionSecret string

	JWTSecret      string
	JWTExpireHours int

	UploadsDir        string
	MaxUploadSize     int64
	AllowedExtensions []string

	DefaultPageSize int
	MaxPageSize     int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LoginRateLimit  int
	LoginRateWindow time.Duration

	LogLevel string

	AdminUsername string
	AdminEmail    string
	AdminPassword string
	SeedDemoUsers bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_connect_attempts", 10)
	v.SetDefault("server_port", "8080")
	v.SetDefault("server_mode", "debug")
	v.SetDefault("jwt_expire_hours", 24*7)
	v.SetDefault("uploads_dir", "uploads")
	v.SetDefault("max_upload_size", 10<<20)
	v.SetDefault("allowed_upload_extensions", ".jpg,.jpeg,.png")
	v.SetDefault("default_page_size", 20)
	v.SetDefault("max_page_size", 100)
	v.SetDefault("redis_db", 0)
	v.SetDefault("login_rate_limit", 10)
	v.SetDefault("login_rate_window", "1m")
	v.SetDefault("log_level", "info")
	v.SetDefault("admin_username", "admin")
	v.SetDefault("admin_email", "admin@qc.local")
	v.SetDefault("admin_password", "Admin123!")
	v.SetDefault("seed_demo_users", false)
}

// Load reads .env (if present), the optional file named by CONFIG_PATH and the
// process environment, in increasing priority.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("config_path"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	window, err := time.ParseDuration(v.GetString("login_rate_window"))
	if err != nil {
		return nil, fmt.Errorf("LOGIN_RATE_WINDOW: %w", err)
	}

	cfg := &Config{
		DBDriver:          strings.ToLower(v.GetString("db_driver")),
		DBDSN:             v.GetString("db_dsn"),
		DBConnectAttempts: v.GetInt("db_connect_attempts"),
		ServerPort:        v.GetString("server_port"),
		ServerMode:        v.GetString("server_mode"),
		SessionSecret:     v.GetString("session_secret"),
		JWTSecret:         v.GetString("jwt_secret"),
		JWTExpireHours:    v.GetInt("jwt_expire_hours"),
		UploadsDir:        v.GetString("uploads_dir"),
		MaxUploadSize:     v.GetInt64("max_upload_size"),
		AllowedExtensions: splitList(v.GetString("allowed_upload_extensions")),
		DefaultPageSize:   v.GetInt("default_page_size"),
		MaxPageSize:       v.GetInt("max_page_size"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPassword:     v.GetString("redis_password"),
		RedisDB:           v.GetInt("redis_db"),
		LoginRateLimit:    v.GetInt("login_rate_limit"),
		LoginRateWindow:   window,
		LogLevel:          v.GetString("log_level"),
		AdminUsername:     v.GetString("admin_username"),
		AdminEmail:        v.GetString("admin_email"),
		AdminPassword:     v.GetString("admin_password"),
		SeedDemoUsers:     v.GetBool("seed_demo_users"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is not set"))
	}
	if c.DBDriver != "postgres" && c.DBDriver != "mysql" {
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.DefaultPageSize <= 0 || c.MaxPageSize < c.DefaultPageSize {
		errs = append(errs, errors.New("page sizes must satisfy 0 < DEFAULT_PAGE_SIZE <= MAX_PAGE_SIZE"))
	}
	return errors.Join(errs...)
}

// splitList turns ".jpg, .PNG" into [".jpg" ".png"].
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}
