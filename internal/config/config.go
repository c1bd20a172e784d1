package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	TimeZone    string `mapstructure:"TIMEZONE"`

	// Provider identification printed on every invoice.
	ProviderName    string `mapstructure:"PROVIDER_NAME"`
	ProviderAddress string `mapstructure:"PROVIDER_ADDRESS"`
	ProviderZipCity string `mapstructure:"PROVIDER_ZIPCITY"`
	ProviderPhone   string `mapstructure:"PROVIDER_PHONE"`
	ProviderCode    string `mapstructure:"PROVIDER_CODE"`
	MainBankAccount string `mapstructure:"MAIN_BANK_ACCOUNT"`
	// Printed under the main account when set.
	AltBankAccount  string `mapstructure:"ALTERNATE_BANK_ACCOUNT"`

	AtHomeCareCode string `mapstructure:"AT_HOME_CARE_CODE"`
	RecapBasis     string `mapstructure:"RECAP_BASIS"`

	BlobDir string `mapstructure:"BLOB_DIR"`

	// Calendar mirroring is disabled when CALENDAR_ENDPOINT is empty.
	CalendarEndpoint   string `mapstructure:"CALENDAR_ENDPOINT"`
	CalendarSecret     string `mapstructure:"CALENDAR_SECRET"`
	CalendarMaxRetries uint64 `mapstructure:"CALENDAR_MAX_RETRIES"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "TIMEZONE",
	"PROVIDER_NAME", "PROVIDER_ADDRESS", "PROVIDER_ZIPCITY", "PROVIDER_PHONE", "PROVIDER_CODE",
	"MAIN_BANK_ACCOUNT", "ALTERNATE_BANK_ACCOUNT", "AT_HOME_CARE_CODE", "RECAP_BASIS", "BLOB_DIR",
	"CALENDAR_ENDPOINT", "CALENDAR_SECRET", "CALENDAR_MAX_RETRIES", "REQUEST_TIMEOUT", "BODY_LIMIT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("TIMEZONE", "Europe/Luxembourg")
	v.SetDefault("AT_HOME_CARE_CODE", "NF01")
	v.SetDefault("RECAP_BASIS", "gross")
	v.SetDefault("BLOB_DIR", "./data/blobs")
	v.SetDefault("CALENDAR_MAX_RETRIES", 3)
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("BODY_LIMIT", "2M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Production needs
// the provider identification and main bank account printed on invoices.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AtHomeCareCode) == "" {
		return fmt.Errorf("AT_HOME_CARE_CODE must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.RecapBasis) {
	case "gross", "net", "participation":
	default:
		return fmt.Errorf("RECAP_BASIS must be \"gross\", \"net\" or \"participation\", got %q", c.RecapBasis)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	if c.CalendarEndpoint != "" {
		u, err := url.Parse(c.CalendarEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("CALENDAR_ENDPOINT must be an http(s) URL, got %q", c.CalendarEndpoint)
		}
		if c.CalendarSecret == "" {
			return fmt.Errorf("CALENDAR_SECRET is required when CALENDAR_ENDPOINT is set")
		}
	}

	if c.IsProduction() {
		required := map[string]string{
			"PROVIDER_NAME":     c.ProviderName,
			"PROVIDER_CODE":     c.ProviderCode,
			"MAIN_BANK_ACCOUNT": c.MainBankAccount,
		}
		for _, k := range keys {
			if val, ok := required[k]; ok && strings.TrimSpace(val) == "" {
				return fmt.Errorf("%s is required in production", k)
			}
		}
	}
	return nil
}
