package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Cron     CronConfig
	Matching MatchingConfig
	Notify   NotifyConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type LogConfig struct {
	JSON  bool
	Debug bool
}

type DatabaseConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	ConnectTimeout        time.Duration
	PoolMaxConns          int32
	PoolMinConns          int32
	PoolMaxConnLifetime   time.Duration
	PoolMaxConnIdleTime   time.Duration
	PoolHealthCheckPeriod time.Duration

	MigrationsDir  string
	MigrateOnStart bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	LockTTL  time.Duration
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type JWTConfig struct {
	AccessSecret     string
	RefreshSecret    string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration

	// InitDataMaxAge bounds the age of a Telegram sign-in payload. Zero disables the check.
	InitDataMaxAge time.Duration
}

// CronConfig guards the trigger endpoints. SecretHash is a bcrypt hash of the shared cron secret.
type CronConfig struct {
	SecretHash string
}

type MatchingConfig struct {
	SkillWeight     float64       `validate:"gte=0"`
	InterestWeight  float64       `validate:"gte=0"`
	SizeDiffBonus   float64       `validate:"gte=0"`
	CooldownPenalty float64       `validate:"gte=0"`
	Cooldown        time.Duration `validate:"gte=0"`
	ScoringWorkers  int           `validate:"gte=1"`
}

func DefaultMatching() MatchingConfig {
	return MatchingConfig{
		SkillWeight:     0.6,
		InterestWeight:  0.4,
		SizeDiffBonus:   0.02,
		CooldownPenalty: 0.5,
		Cooldown:        90 * 24 * time.Hour,
		ScoringWorkers:  runtime.GOMAXPROCS(0),
	}
}

type NotifyConfig struct {
	BotToken         string
	APIBaseURL       string        `validate:"required,url"`
	SendTimeout      time.Duration `validate:"gt=0"`
	RatePerSecond    float64       `validate:"gt=0"`
	MaxAttempts      int           `validate:"gte=1"`
	RevealTemplate   string        `validate:"required"`
	ReminderTemplate string        `validate:"required"`
	NoUsernameText   string
}

const (
	DefaultRevealTemplate   = "Your networking contact: {{.Name}}\n{{.Bio}}\n{{.Contact}}"
	DefaultReminderTemplate = "Reminder: your one-on-one call starts at {{.StartsAt}}."
	DefaultNoUsernameText   = "Contact has no username"
)

func DefaultNotify() NotifyConfig {
	return NotifyConfig{
		APIBaseURL:       "https://api.telegram.org",
		SendTimeout:      5 * time.Second,
		RatePerSecond:    25,
		MaxAttempts:      5,
		RevealTemplate:   DefaultRevealTemplate,
		ReminderTemplate: DefaultReminderTemplate,
		NoUsernameText:   DefaultNoUsernameText,
	}
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

// Load reads configuration from the environment.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from the environment, layered over an optional config file.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	m := DefaultMatching()
	n := DefaultNotify()

	v.SetDefault("app_name", "peer-match")
	v.SetDefault("app_env", "development")
	v.SetDefault("http_port", "8080")

	v.SetDefault("db_port", "5432")
	v.SetDefault("db_ssl_mode", "disable")
	v.SetDefault("db_connect_timeout", 10*time.Second)
	v.SetDefault("db_migrations_dir", "migrations")

	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_lock_ttl", 30*time.Second)

	v.SetDefault("jwt_access_expires_in", 24*time.Hour)
	v.SetDefault("jwt_refresh_expires_in", 30*24*time.Hour)
	v.SetDefault("tg_init_data_max_age", 24*time.Hour)

	v.SetDefault("match_skill_weight", m.SkillWeight)
	v.SetDefault("match_interest_weight", m.InterestWeight)
	v.SetDefault("match_size_diff_bonus", m.SizeDiffBonus)
	v.SetDefault("match_cooldown_penalty", m.CooldownPenalty)
	v.SetDefault("match_cooldown_days", 90)
	v.SetDefault("match_scoring_workers", m.ScoringWorkers)

	v.SetDefault("tg_api_base_url", n.APIBaseURL)
	v.SetDefault("notify_send_timeout", n.SendTimeout)
	v.SetDefault("notify_rate_per_second", n.RatePerSecond)
	v.SetDefault("notify_max_attempts", n.MaxAttempts)
	v.SetDefault("notify_reveal_template", n.RevealTemplate)
	v.SetDefault("notify_reminder_template", n.ReminderTemplate)
	v.SetDefault("notify_no_username_text", n.NoUsernameText)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{}

	var missing []string
	req := func(key string) string {
		s := strings.TrimSpace(v.GetString(key))
		if s == "" {
			missing = append(missing, strings.ToUpper(key))
		}
		return s
	}
	opt := func(key string) string {
		return strings.TrimSpace(v.GetString(key))
	}

	cfg.App = AppConfig{
		AppName:     opt("app_name"),
		Environment: opt("app_env"),
		HTTPPort:    opt("http_port"),
	}

	cfg.Log = LogConfig{
		JSON:  v.GetBool("log_json"),
		Debug: v.GetBool("log_debug"),
	}

	cfg.Database = DatabaseConfig{
		DBHost:                req("db_host"),
		DBPort:                opt("db_port"),
		DBName:                req("db_name"),
		DBUser:                req("db_user"),
		DBPassword:            v.GetString("db_password"),
		DBSSLMode:             opt("db_ssl_mode"),
		ConnectTimeout:        v.GetDuration("db_connect_timeout"),
		PoolMaxConns:          v.GetInt32("db_pool_max_conns"),
		PoolMinConns:          v.GetInt32("db_pool_min_conns"),
		PoolMaxConnLifetime:   v.GetDuration("db_pool_max_conn_lifetime"),
		PoolMaxConnIdleTime:   v.GetDuration("db_pool_max_conn_idle_time"),
		PoolHealthCheckPeriod: v.GetDuration("db_pool_health_check_period"),
		MigrationsDir:         opt("db_migrations_dir"),
		MigrateOnStart:        v.GetBool("db_migrate_on_start"),
	}

	cfg.Redis = RedisConfig{
		Host:     opt("redis_host"),
		Port:     opt("redis_port"),
		Password: v.GetString("redis_password"),
		DB:       v.GetInt("redis_db"),
		LockTTL:  v.GetDuration("redis_lock_ttl"),
	}

	cfg.JWT = JWTConfig{
		AccessSecret:     opt("jwt_access_secret"),
		RefreshSecret:    opt("jwt_refresh_secret"),
		AccessExpiresIn:  v.GetDuration("jwt_access_expires_in"),
		RefreshExpiresIn: v.GetDuration("jwt_refresh_expires_in"),
		InitDataMaxAge:   v.GetDuration("tg_init_data_max_age"),
	}

	cfg.Cron = CronConfig{SecretHash: opt("cron_secret_hash")}

	cfg.Matching = MatchingConfig{
		SkillWeight:     v.GetFloat64("match_skill_weight"),
		InterestWeight:  v.GetFloat64("match_interest_weight"),
		SizeDiffBonus:   v.GetFloat64("match_size_diff_bonus"),
		CooldownPenalty: v.GetFloat64("match_cooldown_penalty"),
		Cooldown:        time.Duration(v.GetInt("match_cooldown_days")) * 24 * time.Hour,
		ScoringWorkers:  v.GetInt("match_scoring_workers"),
	}

	cfg.Notify = NotifyConfig{
		BotToken:         opt("tg_bot_token"),
		APIBaseURL:       opt("tg_api_base_url"),
		SendTimeout:      v.GetDuration("notify_send_timeout"),
		RatePerSecond:    v.GetFloat64("notify_rate_per_second"),
		MaxAttempts:      v.GetInt("notify_max_attempts"),
		RevealTemplate:   v.GetString("notify_reveal_template"),
		ReminderTemplate: v.GetString("notify_reminder_template"),
		NoUsernameText:   v.GetString("notify_no_username_text"),
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c.Matching); err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}
	if err := validate.Struct(c.Notify); err != nil {
		return fmt.Errorf("invalid notify config: %w", err)
	}
	return nil
}
