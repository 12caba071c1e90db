package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

const forceDateLayout = "02/01/2006"

type Config struct {
	Mail       MailConfig
	Database   DatabaseConfig
	Browser    BrowserConfig
	Pacing     PacingConfig
	Scheduler  SchedulerConfig
	S3         S3Config
	PartnerTag string `validate:"required"`
	MaxRetries int    `validate:"min=1"`
	ForceDate  *time.Time
	RedisURL   string
	Metrics    string
	LogPath    string
	LogLevel   string
	Portal     *PortalProfile
}

type MailConfig struct {
	Sender   string `validate:"required,email"`
	Password string `validate:"required"`
	Server   string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
}

type DatabaseConfig struct {
	Driver   string `validate:"oneof=mysql postgres sqlite3"`
	Host     string
	Port     int
	User     string `validate:"required_if=Driver mysql"`
	Password string `validate:"required_if=Driver mysql"`
	Name     string
	URL      string `validate:"required_if=Driver postgres"`
	Path     string `validate:"required_if=Driver sqlite3"`
}

type BrowserConfig struct {
	Headless        bool
	DownloadTimeout time.Duration `validate:"min=1s"`
}

// PacingConfig holds the human-pacing bounds in milliseconds.
type PacingConfig struct {
	MinMS    int `validate:"min=0"`
	MaxMS    int `validate:"gtefield=MinMS"`
	KeyMinMS int `validate:"min=0"`
	KeyMaxMS int `validate:"gtefield=KeyMinMS"`
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Mail: MailConfig{
			Sender:   os.Getenv("EMAIL_SENDER"),
			Password: os.Getenv("EMAIL_PASSWORD"),
			Server:   getEnv("SMTP_SERVER", "smtps.aruba.it"),
			Port:     getEnvInt("SMTP_PORT", 587),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "automation"),
			URL:      os.Getenv("DATABASE_URL"),
			Path:     getEnv("DB_PATH", "flows.db"),
		},
		Browser: BrowserConfig{
			Headless:        strings.EqualFold(os.Getenv("HEADLESS_BROWSER"), "true"),
			DownloadTimeout: time.Duration(getEnvInt("DOWNLOAD_TIMEOUT", 300)) * time.Second,
		},
		Pacing: PacingConfig{
			MinMS:    getEnvInt("PACE_MIN_MS", 1000),
			MaxMS:    getEnvInt("PACE_MAX_MS", 1500),
			KeyMinMS: getEnvInt("KEY_MIN_MS", 100),
			KeyMaxMS: getEnvInt("KEY_MAX_MS", 250),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "eu-south-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		PartnerTag: getEnv("PARTNER_TAG", "ecotrade"),
		MaxRetries: getEnvInt("MAX_RETRIES", 3),
		RedisURL:   os.Getenv("REDIS_URL"),
		Metrics:    os.Getenv("METRICS_ADDR"),
		LogPath:    getEnv("LOG_PATH", "daemon.log"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if raw := os.Getenv("FORCE_DATE"); raw != "" {
		d, err := time.ParseInLocation(forceDateLayout, raw, time.Local)
		if err != nil {
			return nil, fmt.Errorf("FORCE_DATE must be dd/mm/yyyy: %w", err)
		}
		cfg.ForceDate = &d
	}

	portal, err := LoadPortalProfile(getEnv("PORTAL_PROFILE", "config/portal.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Portal = portal

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or malformed setting at once.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

// WholesalerTag is the upper-case partner tag used in organized file names.
func (c *Config) WholesalerTag() string {
	return strings.ToUpper(c.PartnerTag)
}

// DSN builds the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return d.URL
	case "sqlite3":
		return d.Path
	default:
		mc := mysql.NewConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		mc.DBName = d.Name
		mc.ParseTime = true
		mc.Loc = time.Local
		return mc.FormatDSN()
	}
}

// Redacted is a log-safe description of the database target.
func (d DatabaseConfig) Redacted() string {
	switch d.Driver {
	case "postgres":
		return maskConnectionString(d.URL)
	case "sqlite3":
		return "sqlite3:" + d.Path
	default:
		return fmt.Sprintf("mysql:%s@%s:%d/%s", d.User, d.Host, d.Port, d.Name)
	}
}

func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
