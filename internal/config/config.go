// Package config provides functionality for managing configuration options
// for the server and the client using command-line flags, an optional JSON
// file and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/atinyakov/learnpath/internal/quota"
)

// Duration is a time.Duration that reads Go duration strings ("1h", "10s") from JSON.
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts either a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = v
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	d.Duration = time.Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDriver selects the remote store backend: "postgres" or "sqlite".
	DatabaseDriver string `json:"database_driver"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn"`

	// JWTSecret signs and verifies bearer tokens.
	JWTSecret string `json:"jwt_secret"`

	// PaymentSecret verifies order receipts; upgrades are refused when empty.
	PaymentSecret string `json:"payment_secret"`

	// TokenTTL is the lifetime of bearer tokens issued on upgrade.
	TokenTTL Duration `json:"token_ttl"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// FreePlanLimit and ProPlanLimit cap the plans an owner may create per tier.
	FreePlanLimit int `json:"free_plan_limit"`
	ProPlanLimit  int `json:"pro_plan_limit"`

	// AllowGuestPlans lets unauthenticated sessions keep local-only plans.
	AllowGuestPlans bool `json:"allow_guest_plans"`

	// ShareTTL is how long a freshly minted share link of a user plan stays valid.
	ShareTTL Duration `json:"share_ttl"`

	// LookupTimeout bounds remote public-plan lookups.
	LookupTimeout Duration `json:"lookup_timeout"`

	// CleanerInterval and ShareRetention drive the expired share-token cleaner.
	CleanerInterval Duration `json:"cleaner_interval"`
	ShareRetention  Duration `json:"share_retention"`

	// PublicRatePerMinute throttles unauthenticated share lookups per client.
	PublicRatePerMinute int `json:"public_rate_per_minute"`

	// ServerURL is the base URL the client talks to.
	ServerURL string `json:"server_url"`

	// Token is the client's bearer token.
	Token string `json:"token"`
	// CAFile pins the CA the client trusts for an HTTPS server.
	CAFile string `json:"ca_file"`
	// RequestTimeout bounds every client request to the server.
	RequestTimeout Duration `json:"request_timeout"`
	// RefreshInterval is how often the interactive shell reloads plans.
	RefreshInterval Duration `json:"refresh_interval"`

	// OpenAIKey and OpenAIModel configure AI plan drafts.
	OpenAIKey   string `json:"openai_api_key"`
	OpenAIModel string `json:"openai_model"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

// Default returns Options populated with development defaults.
func Default() *Options {
	return &Options{
		Port:                "localhost:8080",
		DatabaseDriver:      "sqlite",
		DatabaseDSN:         "learnpath.db",
		FreePlanLimit:       quota.DefaultFreeLimit,
		ProPlanLimit:        quota.DefaultProLimit,
		ShareTTL:            Duration{time.Hour},
		TokenTTL:            Duration{24 * time.Hour},
		LookupTimeout:       Duration{10 * time.Second},
		CleanerInterval:     Duration{time.Hour},
		ShareRetention:      Duration{30 * 24 * time.Hour},
		PublicRatePerMinute: 60,
		ServerURL:           "http://localhost:8080",
		RequestTimeout:      Duration{30 * time.Second},
		RefreshInterval:     Duration{time.Minute},
		OpenAIModel:         "gpt-4o-mini",
		LogLevel:            "info",
		Config:              "config.json",
	}
}

// RegisterServerFlags binds the server flags to fs.
func RegisterServerFlags(fs *flag.FlagSet, o *Options) {
	fs.StringVar(&o.Port, "a", o.Port, "run on ip:port server")
	fs.StringVar(&o.DatabaseDriver, "driver", o.DatabaseDriver, "database driver: postgres | sqlite")
	fs.StringVar(&o.DatabaseDSN, "d", o.DatabaseDSN, "db address")
	fs.StringVar(&o.JWTSecret, "secret", o.JWTSecret, "bearer token signing secret")
	fs.StringVar(&o.PaymentSecret, "payment-secret", o.PaymentSecret, "order receipt verification secret")
	fs.StringVar(&o.TLSCert, "tls-cert", o.TLSCert, "path to TLS certificate")
	fs.StringVar(&o.TLSKey, "tls-key", o.TLSKey, "path to TLS key")
	fs.StringVar(&o.Config, "config", o.Config, "path to config file")
	fs.StringVar(&o.Config, "c", o.Config, "path to config file (shorthand)")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")
}

// Parse parses the server command line and environment variables to set
// configuration values. Precedence: environment > flags > config file > defaults.
func Parse() (*Options, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:])
}

// ParseArgs is Parse over an explicit flag set and argument list.
func ParseArgs(fs *flag.FlagSet, args []string) (*Options, error) {
	o := Default()
	RegisterServerFlags(fs, o)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Flags given explicitly must win over the file, so remember them.
	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

	if configPath := os.Getenv("CONFIG"); configPath != "" {
		o.Config = configPath
	}
	if err := o.LoadFile(o.Config); err != nil {
		return nil, err
	}
	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return nil, err
		}
	}
	if err := o.ApplyEnv(); err != nil {
		return nil, err
	}
	return o, nil
}

// LoadFile merges the JSON config file at path into o. A missing file is not an error.
func (o *Options) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error while reading config file: %w", err)
	}
	if err := json.Unmarshal(data, o); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (o *Options) ApplyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("SERVER_ADDRESS", &o.Port)
	setString("DATABASE_DRIVER", &o.DatabaseDriver)
	setString("DATABASE_DSN", &o.DatabaseDSN)
	setString("JWT_SECRET", &o.JWTSecret)
	setString("PAYMENT_SECRET", &o.PaymentSecret)
	setString("LEARNPATH_SERVER_URL", &o.ServerURL)
	setString("LEARNPATH_TOKEN", &o.Token)
	setString("LEARNPATH_CA_FILE", &o.CAFile)
	setString("OPENAI_API_KEY", &o.OpenAIKey)
	setString("LOG_LEVEL", &o.LogLevel)

	for key, dst := range map[string]*int{
		"FREE_PLAN_LIMIT": &o.FreePlanLimit,
		"PRO_PLAN_LIMIT":  &o.ProPlanLimit,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := os.Getenv("ALLOW_GUEST_PLANS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALLOW_GUEST_PLANS: %w", err)
		}
		o.AllowGuestPlans = b
	}
	return nil
}

// QuotaPolicy builds the plan quota from the configured limits.
func (o *Options) QuotaPolicy() quota.Policy {
	return quota.NewPolicy(o.FreePlanLimit, o.ProPlanLimit)
}
