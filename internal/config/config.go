package config

import (
    "errors"
    "fmt"
    "net/url"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "github.com/shopspring/decimal"
    "github.com/spf13/viper"
)

type Config struct {
    App         AppConfig
    Database    DatabaseConfig
    Log         LogConfig
    HTTP        HTTPConfig
    CinetPay    CinetPayConfig
    Settlement  SettlementConfig
    Fees        FeesConfig
    Auth        AuthConfig
    Redis       RedisConfig
    Idempotency IdempotencyConfig
    Kafka       KafkaConfig
}

type AppConfig struct {
    Env  string
    Port string
}

type DatabaseConfig struct {
    URL      string
    Host     string
    Port     int
    User     string
    Password string
    DBName   string
    SSLMode  string
    MaxConns int32
}

type LogConfig struct {
    Level  string
    Format string
    Output string
}

type HTTPConfig struct {
    ReadTimeout        time.Duration
    WriteTimeout       time.Duration
    CORSAllowedOrigins []string
}

type CinetPayConfig struct {
    APIKey        string
    SiteID        string
    CheckoutURL   string
    StatusURL     string
    Timeout       time.Duration
    NotifyURL     string
    ReturnURLBase string
    Channels      string
}

type SettlementConfig struct {
    Currency string
}

type FeesConfig struct {
    PlatformRate decimal.Decimal
    ProviderRate decimal.Decimal
}

type AuthConfig struct {
    JWTSecret string
    JWTIssuer string
}

type RedisConfig struct {
    Addr     string
    Password string
    DB       int
}

type IdempotencyConfig struct {
    TTL time.Duration
}

type KafkaConfig struct {
    Brokers []string
    Topic   string
}

// Load reads configuration with this priority: AFRISENS_* environment variables
// (a local .env file included), config.toml, built-in defaults.
func Load() (*Config, error) {
    _ = godotenv.Load()

    v := viper.New()
    v.SetConfigName("config")
    v.SetConfigType("toml")
    v.AddConfigPath(".")
    v.AddConfigPath("/app")
    setDefaults(v)

    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("error reading config file: %w", err)
        }
    }

    v.SetEnvPrefix("AFRISENS")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    platformRate, err := decimal.NewFromString(v.GetString("fees.platform_rate"))
    if err != nil {
        return nil, fmt.Errorf("fees.platform_rate: %w", err)
    }
    providerRate, err := decimal.NewFromString(v.GetString("fees.provider_rate"))
    if err != nil {
        return nil, fmt.Errorf("fees.provider_rate: %w", err)
    }

    cfg := &Config{
        App: AppConfig{
            Env:  v.GetString("app.env"),
            Port: v.GetString("app.port"),
        },
        Database: DatabaseConfig{
            URL:      v.GetString("database.url"),
            Host:     v.GetString("database.host"),
            Port:     v.GetInt("database.port"),
            User:     v.GetString("database.user"),
            Password: v.GetString("database.password"),
            DBName:   v.GetString("database.dbname"),
            SSLMode:  v.GetString("database.sslmode"),
            MaxConns: v.GetInt32("database.max_conns"),
        },
        Log: LogConfig{
            Level:  v.GetString("log.level"),
            Format: v.GetString("log.format"),
            Output: v.GetString("log.output"),
        },
        HTTP: HTTPConfig{
            ReadTimeout:        v.GetDuration("http.read_timeout"),
            WriteTimeout:       v.GetDuration("http.write_timeout"),
            CORSAllowedOrigins: splitList(v.GetStringSlice("http.cors_allowed_origins")),
        },
        CinetPay: CinetPayConfig{
            APIKey:        v.GetString("cinetpay.api_key"),
            SiteID:        v.GetString("cinetpay.site_id"),
            CheckoutURL:   v.GetString("cinetpay.checkout_url"),
            StatusURL:     v.GetString("cinetpay.status_url"),
            Timeout:       v.GetDuration("cinetpay.timeout"),
            NotifyURL:     v.GetString("cinetpay.notify_url"),
            ReturnURLBase: v.GetString("cinetpay.return_url_base"),
            Channels:      v.GetString("cinetpay.channels"),
        },
        Settlement: SettlementConfig{
            Currency: strings.ToUpper(v.GetString("settlement.currency")),
        },
        Fees: FeesConfig{
            PlatformRate: platformRate,
            ProviderRate: providerRate,
        },
        Auth: AuthConfig{
            JWTSecret: v.GetString("auth.jwt_secret"),
            JWTIssuer: v.GetString("auth.jwt_issuer"),
        },
        Redis: RedisConfig{
            Addr:     v.GetString("redis.addr"),
            Password: v.GetString("redis.password"),
            DB:       v.GetInt("redis.db"),
        },
        Idempotency: IdempotencyConfig{
            TTL: v.GetDuration("idempotency.ttl"),
        },
        Kafka: KafkaConfig{
            Brokers: splitList(v.GetStringSlice("kafka.brokers")),
            Topic:   v.GetString("kafka.topic"),
        },
    }

    if err := cfg.Validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("app.env", "development")
    v.SetDefault("app.port", "8080")

    v.SetDefault("database.host", "localhost")
    v.SetDefault("database.port", 5432)
    v.SetDefault("database.user", "postgres")
    v.SetDefault("database.dbname", "afrisens")
    v.SetDefault("database.sslmode", "disable")
    v.SetDefault("database.max_conns", 10)

    v.SetDefault("log.level", "info")
    v.SetDefault("log.format", "json")
    v.SetDefault("log.output", "stdout")

    v.SetDefault("http.read_timeout", 10*time.Second)
    v.SetDefault("http.write_timeout", 30*time.Second)
    v.SetDefault("http.cors_allowed_origins", []string{"*"})

    v.SetDefault("cinetpay.checkout_url", "https://api-checkout.cinetpay.com/v2/payment")
    v.SetDefault("cinetpay.status_url", "https://api.cinetpay.com/v1/?method=checkPayStatus")
    v.SetDefault("cinetpay.timeout", 15*time.Second)
    v.SetDefault("cinetpay.return_url_base", "afrisens://payment-return/")
    v.SetDefault("cinetpay.channels", "ALL")

    v.SetDefault("settlement.currency", "XOF")
    v.SetDefault("fees.platform_rate", "0.05")
    v.SetDefault("fees.provider_rate", "0.025")

    v.SetDefault("auth.jwt_issuer", "")
    v.SetDefault("redis.db", 0)
    v.SetDefault("idempotency.ttl", 24*time.Hour)
    v.SetDefault("kafka.topic", "donation.settled")
}

// Validate fails fast on settings the service cannot run without.
func (c *Config) Validate() error {
    if c.CinetPay.APIKey == "" || c.CinetPay.SiteID == "" {
        return errors.New("cinetpay.api_key and cinetpay.site_id are required")
    }
    if c.CinetPay.NotifyURL == "" {
        return errors.New("cinetpay.notify_url is required")
    }
    if c.CinetPay.Timeout <= 0 {
        return errors.New("cinetpay.timeout must be positive")
    }
    if c.Auth.JWTSecret == "" {
        return errors.New("auth.jwt_secret is required")
    }
    if c.Settlement.Currency == "" {
        return errors.New("settlement.currency is required")
    }
    if !c.Fees.PlatformRate.IsPositive() || !c.Fees.ProviderRate.IsPositive() {
        return errors.New("fee rates must be positive")
    }
    if c.Fees.PlatformRate.Add(c.Fees.ProviderRate).GreaterThanOrEqual(decimal.NewFromInt(1)) {
        return errors.New("fee rates must sum to less than 1")
    }
    if c.Database.MaxConns <= 0 {
        return errors.New("database.max_conns must be positive")
    }
    if c.App.Env == "production" && len(c.Auth.JWTSecret) < 32 {
        return errors.New("auth.jwt_secret must be at least 32 characters in production")
    }
    return nil
}

// DSN returns database.url when set, otherwise a URL built from the discrete fields.
func (d DatabaseConfig) DSN() string {
    if d.URL != "" {
        return d.URL
    }
    u := url.URL{
        Scheme: "postgres",
        User:   url.UserPassword(d.User, d.Password),
        Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
        Path:   d.DBName,
    }
    q := u.Query()
    q.Set("sslmode", d.SSLMode)
    u.RawQuery = q.Encode()
    return u.String()
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(values []string) []string {
    var out []string
    for _, v := range values {
        for _, part := range strings.Split(v, ",") {
            if part = strings.TrimSpace(part); part != "" {
                out = append(out, part)
            }
        }
    }
    return out
}
