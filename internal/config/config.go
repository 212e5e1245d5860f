package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig 后端服务的两个必需配置：数据库地址和令牌签名密钥
type BackendConfig struct {
	URL    string // 数据库 DSN
	Key    string // JWT 签名密钥
	Driver string // postgres 或 sqlite
}

type SessionConfig struct {
	Secret      string
	CookieName  string
	LoadTimeout time.Duration // 会话加载看门狗
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
}

type OAuthConfig struct {
	SiteURL  string
	Google   OAuthProviderConfig
	Facebook OAuthProviderConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	BucketImages  string
	BucketAvatars string
	UseSSL        bool
	Region        string
	PublicURL     string
}

// CacheConfig 客户端本地缓存相关配置
type CacheConfig struct {
	QuotaBytes    int // 每个客户端 KV 存储的配额
	MaxClients    int // 内存中保留的客户端上下文数量
	MaxMediaBytes int64
}

// MailConfig SMTP 发信配置，五项都填写才启用
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.Port != 0 && m.Username != "" && m.Password != "" && m.From != ""
}

type RateLimitConfig struct {
	SignInPerMinute float64
	SignInBurst     int
}

type AppConfig struct {
	Environment      string
	LogLevel         string // 为空时按环境选择
	HTTP             HTTPConfig
	Backend          BackendConfig
	Session          SessionConfig
	OAuth            OAuthConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Cache            CacheConfig
	Mail             MailConfig
	RateLimit        RateLimitConfig
	TemplatesDir     string
	AllowCORSOrigins []string
}

// BackendConfigured 两个后端配置项都存在时才启用认证和远程数据
func (c *AppConfig) BackendConfigured() bool {
	return c.Backend.URL != "" && c.Backend.Key != ""
}

func (c *AppConfig) StorageConfigured() bool {
	return c.Storage.Endpoint != "" && c.Storage.AccessKey != ""
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("RMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("loglevel", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "30s")
	v.SetDefault("http.idletimeout", "60s")

	// 空值即“未配置”，服务降级运行
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.key", "")
	v.SetDefault("backend.driver", "postgres")

	v.SetDefault("session.secret", "secret_key_change_me")
	v.SetDefault("session.cookiename", "rma_session")
	v.SetDefault("session.loadtimeout", "5s")
	v.SetDefault("session.accessttl", "1h")
	v.SetDefault("session.refreshttl", "720h")

	v.SetDefault("oauth.siteurl", "http://localhost:8080")
	v.SetDefault("oauth.google.clientid", "")
	v.SetDefault("oauth.google.clientsecret", "")
	v.SetDefault("oauth.facebook.clientid", "")
	v.SetDefault("oauth.facebook.clientsecret", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketimages", "images")
	v.SetDefault("storage.bucketavatars", "avatars")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.publicurl", "")

	v.SetDefault("cache.quotabytes", 5*1024*1024)
	v.SetDefault("cache.maxclients", 2000)
	v.SetDefault("cache.maxmediabytes", 2*1024*1024)

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")

	v.SetDefault("ratelimit.signinperminute", 10)
	v.SetDefault("ratelimit.signinburst", 5)

	v.SetDefault("templatesdir", "./web/templates")
	v.SetDefault("allowcorsorigins", []string{})
}
