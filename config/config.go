// Package config centralises runtime configuration for orderdesk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credentials captures API credentials used for signed requests.
type Credentials struct {
	APIKey    string `yaml:"apiKey"`
	APISecret string `yaml:"apiSecret"`
}

// Settings contains the orderdesk configuration tree loaded from defaults,
// an optional YAML file, and environment overrides.
type Settings struct {
	RESTBaseURL string
	WSURL       string
	Credentials Credentials

	BaseAsset  string
	QuoteAsset string

	RecvWindow        time.Duration
	HTTPTimeout       time.Duration
	KeepAliveInterval time.Duration

	StateFile   string
	PostgresDSN string

	// RequireReferencePrice makes percent-price validation fail closed when no
	// reference price can be fetched.
	RequireReferencePrice bool

	OTLPEndpoint string
	Verbose      bool
}

// Symbol returns the exchange symbol for the configured asset pair.
func (s Settings) Symbol() string {
	return strings.ToUpper(strings.TrimSpace(s.BaseAsset)) + strings.ToUpper(strings.TrimSpace(s.QuoteAsset))
}

// Validate reports configuration errors that prevent startup.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.RESTBaseURL) == "" {
		return fmt.Errorf("config: rest base url required")
	}
	if strings.TrimSpace(s.BaseAsset) == "" || strings.TrimSpace(s.QuoteAsset) == "" {
		return fmt.Errorf("config: base and quote assets required")
	}
	if s.RecvWindow < 0 {
		return fmt.Errorf("config: recvWindow must not be negative")
	}
	return nil
}

// Default returns the default orderdesk configuration.
func Default() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		RESTBaseURL:           "https://api.binance.com",
		WSURL:                 "wss://stream.binance.com:9443/ws",
		Credentials:           Credentials{APIKey: "", APISecret: ""},
		BaseAsset:             "BTC",
		QuoteAsset:            "USDT",
		RecvWindow:            5 * time.Second,
		HTTPTimeout:           10 * time.Second,
		KeepAliveInterval:     30 * time.Minute,
		StateFile:             filepath.Join(home, ".orderdesk", "orders.json"),
		PostgresDSN:           "",
		RequireReferencePrice: false,
		OTLPEndpoint:          "",
		Verbose:               false,
	}
}

// fileSettings mirrors Settings for YAML decoding; durations are expressed as
// strings ("5s", "30m") since yaml.v3 has no native time.Duration support.
type fileSettings struct {
	RESTBaseURL           *string      `yaml:"restBaseUrl"`
	WSURL                 *string      `yaml:"wsUrl"`
	Credentials           *Credentials `yaml:"credentials"`
	BaseAsset             *string      `yaml:"baseAsset"`
	QuoteAsset            *string      `yaml:"quoteAsset"`
	RecvWindow            *string      `yaml:"recvWindow"`
	HTTPTimeout           *string      `yaml:"httpTimeout"`
	KeepAliveInterval     *string      `yaml:"keepAliveInterval"`
	StateFile             *string      `yaml:"stateFile"`
	PostgresDSN           *string      `yaml:"postgresDsn"`
	RequireReferencePrice *bool        `yaml:"requireReferencePrice"`
	OTLPEndpoint          *string      `yaml:"otlpEndpoint"`
	Verbose               *bool        `yaml:"verbose"`
}

// LoadFile overlays YAML configuration from path onto cfg. A missing file is
// not an error; the defaults are returned unchanged.
func LoadFile(cfg Settings, path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	var file fileSettings
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if file.RESTBaseURL != nil {
		cfg.RESTBaseURL = *file.RESTBaseURL
	}
	if file.WSURL != nil {
		cfg.WSURL = *file.WSURL
	}
	if file.Credentials != nil {
		if file.Credentials.APIKey != "" {
			cfg.Credentials.APIKey = file.Credentials.APIKey
		}
		if file.Credentials.APISecret != "" {
			cfg.Credentials.APISecret = file.Credentials.APISecret
		}
	}
	if file.BaseAsset != nil {
		cfg.BaseAsset = *file.BaseAsset
	}
	if file.QuoteAsset != nil {
		cfg.QuoteAsset = *file.QuoteAsset
	}
	if file.RecvWindow != nil {
		dur, err := time.ParseDuration(*file.RecvWindow)
		if err != nil {
			return cfg, fmt.Errorf("parse recvWindow: %w", err)
		}
		cfg.RecvWindow = dur
	}
	if file.HTTPTimeout != nil {
		dur, err := time.ParseDuration(*file.HTTPTimeout)
		if err != nil {
			return cfg, fmt.Errorf("parse httpTimeout: %w", err)
		}
		cfg.HTTPTimeout = dur
	}
	if file.KeepAliveInterval != nil {
		dur, err := time.ParseDuration(*file.KeepAliveInterval)
		if err != nil {
			return cfg, fmt.Errorf("parse keepAliveInterval: %w", err)
		}
		cfg.KeepAliveInterval = dur
	}
	if file.StateFile != nil {
		cfg.StateFile = *file.StateFile
	}
	if file.PostgresDSN != nil {
		cfg.PostgresDSN = *file.PostgresDSN
	}
	if file.RequireReferencePrice != nil {
		cfg.RequireReferencePrice = *file.RequireReferencePrice
	}
	if file.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = *file.OTLPEndpoint
	}
	if file.Verbose != nil {
		cfg.Verbose = *file.Verbose
	}
	return cfg, nil
}

// FromEnv loads configuration values from environment variables, overriding cfg.
func FromEnv(cfg Settings) Settings {
	if v := strings.TrimSpace(os.Getenv("BINANCE_BASE_URL")); v != "" {
		cfg.RESTBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("BINANCE_WS_BASE_URL")); v != "" {
		cfg.WSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("BINANCE_API_KEY")); v != "" {
		cfg.Credentials.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("BINANCE_API_SECRET")); v != "" {
		cfg.Credentials.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_BASE_ASSET")); v != "" {
		cfg.BaseAsset = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_QUOTE_ASSET")); v != "" {
		cfg.QuoteAsset = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_RECV_WINDOW")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.RecvWindow = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_HTTP_TIMEOUT")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.HTTPTimeout = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_KEEPALIVE_INTERVAL")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.KeepAliveInterval = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_STATE_FILE")); v != "" {
		cfg.StateFile = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_POSTGRES_DSN")); v != "" {
		cfg.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_REQUIRE_REFERENCE_PRICE")); v != "" {
		cfg.RequireReferencePrice = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_OTLP_ENDPOINT")); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERDESK_VERBOSE")); v != "" {
		cfg.Verbose = strings.EqualFold(v, "true") || v == "1"
	}
	return cfg
}

// Load resolves the effective configuration: defaults, then the optional YAML
// file at path, then environment overrides.
func Load(path string) (Settings, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		loaded, err := LoadFile(cfg, path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg = FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
