package config

import (
	"fmt"
	"strings"

	"github.com/cs-store/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	UserJWT  JWTConfig      `mapstructure:"user_jwt"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig JWT 配置（令牌由外部认证服务签发，这里只做校验）
type JWTConfig struct {
	SecretKey string `mapstructure:"secret"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	IntentRateLimit RateLimitConfig `mapstructure:"intent_rate_limit"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// PaymentConfig 支付配置
type PaymentConfig struct {
	DefaultGateway      string         `mapstructure:"default_gateway"`
	IntentExpireMinutes int            `mapstructure:"intent_expire_minutes"`
	MaxAttempts         int            `mapstructure:"max_attempts"`
	Razorpay            RazorpayConfig `mapstructure:"razorpay"`
	Stripe              StripeConfig   `mapstructure:"stripe"`
}

// RazorpayConfig Razorpay 网关配置
type RazorpayConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	KeyID          string `mapstructure:"key_id"`
	KeySecret      string `mapstructure:"key_secret"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	APIBaseURL     string `mapstructure:"api_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StripeConfig Stripe 网关配置
type StripeConfig struct {
	Enabled                 bool     `mapstructure:"enabled"`
	SecretKey               string   `mapstructure:"secret_key"`
	PublishableKey          string   `mapstructure:"publishable_key"`
	WebhookSecret           string   `mapstructure:"webhook_secret"`
	SuccessURL              string   `mapstructure:"success_url"`
	CancelURL               string   `mapstructure:"cancel_url"`
	APIBaseURL              string   `mapstructure:"api_base_url"`
	WebhookToleranceSeconds int      `mapstructure:"webhook_tolerance_seconds"`
	PaymentMethodTypes      []string `mapstructure:"payment_method_types"`
}

// WebhookConfig Webhook 恢复重放配置
type WebhookConfig struct {
	RedriveAfterSeconds  int `mapstructure:"redrive_after_seconds"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	SweepBatchSize       int `mapstructure:"sweep_batch_size"`
	MaxAttempts          int `mapstructure:"max_attempts"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	setDefaults(viper.GetViper())

	// 环境变量支持，例如 payment.razorpay.key_id -> PAYMENT_RAZORPAY_KEY_ID
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/cs-store.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("user_jwt.secret", "user-change-me-in-production")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "cs")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Authorization",
		"Idempotency-Key",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.intent_rate_limit.window_seconds", 60)
	v.SetDefault("security.intent_rate_limit.max_requests", 20)
	v.SetDefault("payment.default_gateway", "razorpay")
	v.SetDefault("payment.intent_expire_minutes", 15)
	v.SetDefault("payment.max_attempts", 3)
	v.SetDefault("payment.razorpay.enabled", true)
	v.SetDefault("payment.razorpay.key_id", "")
	v.SetDefault("payment.razorpay.key_secret", "")
	v.SetDefault("payment.razorpay.webhook_secret", "")
	v.SetDefault("payment.razorpay.api_base_url", "https://api.razorpay.com")
	v.SetDefault("payment.razorpay.timeout_seconds", 12)
	v.SetDefault("payment.stripe.enabled", false)
	v.SetDefault("payment.stripe.api_base_url", "https://api.stripe.com")
	v.SetDefault("payment.stripe.webhook_tolerance_seconds", 300)
	v.SetDefault("payment.stripe.payment_method_types", []string{"card"})
	v.SetDefault("webhook.redrive_after_seconds", 120)
	v.SetDefault("webhook.sweep_interval_seconds", 60)
	v.SetDefault("webhook.sweep_batch_size", 50)
	v.SetDefault("webhook.max_attempts", 10)
}
