package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrPriceNotConfigured means no provider price id is set for a plan choice.
var ErrPriceNotConfigured = errors.New("price not configured")

// Buckets lists the alumni buckets an organization can subscribe with, smallest first.
var Buckets = []string{"none", "0-200", "201-600", "601-1500", "1500+"}

// Intervals lists the supported billing intervals.
var Intervals = []string{"month", "year"}

type Config struct {
	DBSource    string
	StoreDriver string
	SQLitePath  string
	Port        string
	Env         string
	LogLevel    string

	StripeSecretKey string
	PublicOrigin    string

	WaiterMaxWait      time.Duration
	WaiterPollInterval time.Duration

	Pricing Pricing
}

// Pricing maps plan choices to provider price ids.
type Pricing struct {
	// Base holds the base plan price per interval.
	Base map[string]string
	// Alumni holds the add-on price per bucket and interval. Buckets without an
	// entry have no add-on.
	Alumni map[string]map[string]string
	// SalesLedBuckets are handled by the sales team instead of self-serve checkout.
	SalesLedBuckets []string
}

func (p Pricing) IsSalesLed(bucket string) bool {
	for _, b := range p.SalesLedBuckets {
		if b == bucket {
			return true
		}
	}
	return false
}

// PriceIDs returns the base price and the optional alumni add-on price.
func (p Pricing) PriceIDs(interval, bucket string) (string, string, error) {
	base := p.Base[interval]
	if base == "" {
		return "", "", fmt.Errorf("%w: base plan, interval %q", ErrPriceNotConfigured, interval)
	}
	if bucket == "none" {
		return base, "", nil
	}
	alumni := p.Alumni[bucket][interval]
	if alumni == "" {
		return "", "", fmt.Errorf("%w: alumni bucket %q, interval %q", ErrPriceNotConfigured, bucket, interval)
	}
	return base, alumni, nil
}

// Load reads .env, an optional teammeet.yaml and the environment, in increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("teammeet")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/teammeet")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_", "+", "_PLUS"))
	v.AutomaticEnv()

	v.SetDefault("store_driver", DriverPostgres)
	v.SetDefault("sqlite_path", "teammeet.db")
	v.SetDefault("server_port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("public_origin", "http://localhost:3000")
	v.SetDefault("waiter_max_wait", 1500*time.Millisecond)
	v.SetDefault("waiter_poll_interval", 150*time.Millisecond)
	v.SetDefault("pricing.sales_led_buckets", []string{"1500+"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		DBSource:           v.GetString("db_source"),
		StoreDriver:        strings.ToLower(strings.TrimSpace(v.GetString("store_driver"))),
		SQLitePath:         v.GetString("sqlite_path"),
		Port:               v.GetString("server_port"),
		Env:                v.GetString("environment"),
		LogLevel:           v.GetString("log_level"),
		StripeSecretKey:    strings.TrimSpace(v.GetString("stripe_secret_key")),
		PublicOrigin:       strings.TrimRight(v.GetString("public_origin"), "/"),
		WaiterMaxWait:      v.GetDuration("waiter_max_wait"),
		WaiterPollInterval: v.GetDuration("waiter_poll_interval"),
		Pricing:            loadPricing(v),
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.WaiterPollInterval <= 0 || cfg.WaiterMaxWait < cfg.WaiterPollInterval {
		return nil, fmt.Errorf("waiter window %s must be at least one poll interval %s", cfg.WaiterMaxWait, cfg.WaiterPollInterval)
	}

	return cfg, nil
}

func loadPricing(v *viper.Viper) Pricing {
	p := Pricing{
		Base:            make(map[string]string),
		Alumni:          make(map[string]map[string]string),
		SalesLedBuckets: v.GetStringSlice("pricing.sales_led_buckets"),
	}
	for _, interval := range Intervals {
		if id := strings.TrimSpace(v.GetString("pricing.base." + interval)); id != "" {
			p.Base[interval] = id
		}
		for _, bucket := range Buckets[1:] {
			id := strings.TrimSpace(v.GetString("pricing.alumni." + bucket + "." + interval))
			if id == "" {
				continue
			}
			if p.Alumni[bucket] == nil {
				p.Alumni[bucket] = make(map[string]string)
			}
			p.Alumni[bucket][interval] = id
		}
	}
	return p
}

var Module = fx.Module("config",
	fx.Provide(Load),
)
