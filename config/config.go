// Package config loads magic link settings from magiclink.yaml, a .env file
// and MAGICLINK_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-magiclink/notify"
	"github.com/goliatone/go-magiclink/pkg/types"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "MAGICLINK"

// Config is the full runtime configuration.
type Config struct {
	AppName    string                 `mapstructure:"app_name"`
	BaseURL    string                 `mapstructure:"base_url"`
	SigningKey string                 `mapstructure:"signing_key"`
	Expires    int                    `mapstructure:"expires"`
	Guards     map[string]GuardConfig `mapstructure:"guards"`
	Throttle   ThrottleConfig         `mapstructure:"throttle"`
	Channels   ChannelsConfig         `mapstructure:"channels"`
	Messages   MessagesConfig         `mapstructure:"messages"`
	Mail       MailConfig             `mapstructure:"mail"`
	Notify     NotifyConfig           `mapstructure:"notify"`
	Routes     RoutesConfig           `mapstructure:"routes"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	AMQP       AMQPConfig             `mapstructure:"amqp"`
	HTTP       HTTPConfig             `mapstructure:"http"`
	Cleanup    CleanupConfig          `mapstructure:"cleanup"`
	Log        LogConfig              `mapstructure:"log"`
}

// GuardConfig mirrors types.GuardConfig with minute based expiry.
type GuardConfig struct {
	Provider          string `mapstructure:"provider"`
	LinkExpiration    int    `mapstructure:"link_expiration"`
	RedirectOnSuccess string `mapstructure:"redirect_on_success"`
}

type ThrottleConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts"`
	DecayMinutes int `mapstructure:"decay_minutes"`
}

type ChannelsConfig struct {
	Default   []string `mapstructure:"default"`
	Available []string `mapstructure:"available"`
}

type MessagesConfig struct {
	Mail     string `mapstructure:"mail"`
	WhatsApp string `mapstructure:"whatsapp"`
	SMS      string `mapstructure:"sms"`
}

type MailConfig struct {
	Subject      string `mapstructure:"subject"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

// NotifyConfig controls delivery fallbacks. LogFallback writes links for
// channels without a real transport to the log; development only.
type NotifyConfig struct {
	LogFallback bool `mapstructure:"log_fallback"`
}

type RoutesConfig struct {
	Request string `mapstructure:"request"`
	Verify  string `mapstructure:"verify"`
	Login   string `mapstructure:"login"`
}

// DatabaseConfig implements persistence.Config. Driver is "sqlite" or
// "postgres".
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	DSN            string        `mapstructure:"dsn"`
	Debug          bool          `mapstructure:"debug"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	OtelIdentifier string        `mapstructure:"otel_identifier"`
}

var _ persistence.Config = DatabaseConfig{}

func (d DatabaseConfig) GetDebug() bool                { return d.Debug }
func (d DatabaseConfig) GetDriver() string             { return d.Driver }
func (d DatabaseConfig) GetServer() string             { return d.DSN }
func (d DatabaseConfig) GetPingTimeout() time.Duration { return d.PingTimeout }
func (d DatabaseConfig) GetOtelIdentifier() string     { return d.OtelIdentifier }

// RedisConfig selects the Redis limiter when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// AMQPConfig routes whatsapp and sms messages to queues when URL is set.
type AMQPConfig struct {
	URL           string `mapstructure:"url"`
	Exchange      string `mapstructure:"exchange"`
	WhatsAppQueue string `mapstructure:"whatsapp_queue"`
	SMSQueue      string `mapstructure:"sms_queue"`
}

type HTTPConfig struct {
	Addr                   string `mapstructure:"addr"`
	SessionLifetimeMinutes int    `mapstructure:"session_lifetime_minutes"`
	SecureCookies          bool   `mapstructure:"secure_cookies"`
}

type CleanupConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type options struct {
	viper      *viper.Viper
	configFile string
	envFiles   []string
}

// Option customises Load.
type Option func(*options)

// WithConfigFile reads an explicit file instead of searching for magiclink.yaml.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithEnvFiles loads the given dotenv files before reading the environment.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) { o.envFiles = paths }
}

// WithViper uses v instead of a fresh instance.
func WithViper(v *viper.Viper) Option {
	return func(o *options) { o.viper = v }
}

// Load resolves the configuration. Missing files are not an error.
func Load(opts ...Option) (*Config, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if err := loadEnvFiles(o.envFiles); err != nil {
		return nil, err
	}

	v := o.viper
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.configFile != "" {
		v.SetConfigFile(o.configFile)
	} else {
		v.SetConfigName("magiclink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

func loadEnvFiles(paths []string) error {
	if len(paths) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: dotenv: %w", err)
		}
		return nil
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: dotenv %s: %w", path, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", notify.DefaultAppName)
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("signing_key", "")
	v.SetDefault("expires", 15)
	v.SetDefault("guards", map[string]any{
		"web": map[string]any{
			"provider":            "users",
			"link_expiration":     0,
			"redirect_on_success": "/dashboard",
		},
	})
	v.SetDefault("throttle.max_attempts", 5)
	v.SetDefault("throttle.decay_minutes", 10)
	v.SetDefault("channels.default", []string{"mail"})
	v.SetDefault("channels.available", []string{"mail", "whatsapp", "sms"})
	v.SetDefault("messages.mail", notify.DefaultMailTemplate)
	v.SetDefault("messages.whatsapp", notify.DefaultWhatsApp)
	v.SetDefault("messages.sms", notify.DefaultSMS)
	v.SetDefault("mail.subject", notify.DefaultMailSubject)
	v.SetDefault("mail.from_address", "noreply@example.com")
	v.SetDefault("mail.from_name", "Magic Link")
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.smtp_username", "")
	v.SetDefault("mail.smtp_password", "")
	v.SetDefault("notify.log_fallback", false)
	v.SetDefault("routes.request", "/magic-link")
	v.SetDefault("routes.verify", "/auth/verify")
	v.SetDefault("routes.login", "/login")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:magiclink.db?cache=shared&_fk=1")
	v.SetDefault("database.debug", false)
	v.SetDefault("database.ping_timeout", "5s")
	v.SetDefault("database.otel_identifier", "go-magiclink")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.exchange", "")
	v.SetDefault("amqp.whatsapp_queue", "magiclink.whatsapp")
	v.SetDefault("amqp.sms_queue", "magiclink.sms")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.session_lifetime_minutes", 24*60)
	v.SetDefault("http.secure_cookies", false)
	v.SetDefault("cleanup.schedule", "@hourly")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate reports configuration the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return errors.New("config: signing_key required")
	}
	if len(c.Guards) == 0 {
		return errors.New("config: at least one guard required")
	}
	if c.Expires <= 0 {
		return errors.New("config: expires must be positive")
	}
	for _, ch := range append(append([]string{}, c.Channels.Default...), c.Channels.Available...) {
		if !knownChannel(types.Channel(strings.ToLower(strings.TrimSpace(ch)))) {
			return fmt.Errorf("config: unknown channel %q", ch)
		}
	}
	return nil
}

// GuardTable converts the guard section.
func (c *Config) GuardTable() types.Guards {
	out := make(types.Guards, len(c.Guards))
	for name, g := range c.Guards {
		out[name] = types.GuardConfig{
			Name:              name,
			Provider:          g.Provider,
			Expiration:        time.Duration(g.LinkExpiration) * time.Minute,
			RedirectOnSuccess: g.RedirectOnSuccess,
		}
	}
	return out
}

// Expiration is the default link lifetime.
func (c *Config) Expiration() time.Duration {
	return time.Duration(c.Expires) * time.Minute
}

// Decay is the rate limit window.
func (c *Config) Decay() time.Duration {
	return time.Duration(c.Throttle.DecayMinutes) * time.Minute
}

// SessionLifetime is the scs session lifetime.
func (c *Config) SessionLifetime() time.Duration {
	return time.Duration(c.HTTP.SessionLifetimeMinutes) * time.Minute
}

// DefaultChannels is the fallback channel list.
func (c *Config) DefaultChannels() []types.Channel {
	return toChannels(c.Channels.Default)
}

// AvailableChannels restricts which channels may be used.
func (c *Config) AvailableChannels() []types.Channel {
	return toChannels(c.Channels.Available)
}

// Templates builds the notification copy.
func (c *Config) Templates() notify.Templates {
	return notify.Templates{
		AppName:     c.AppName,
		MailSubject: c.Mail.Subject,
		Mail:        c.Messages.Mail,
		WhatsApp:    c.Messages.WhatsApp,
		SMS:         c.Messages.SMS,
	}
}

func toChannels(values []string) []types.Channel {
	out := make([]types.Channel, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, types.Channel(v))
		}
	}
	return out
}

func knownChannel(ch types.Channel) bool {
	for _, known := range types.AllChannels() {
		if ch == known {
			return true
		}
	}
	return false
}
