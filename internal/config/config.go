// Package config loads and validates the settings shared by every command.
// Credentials are read once at startup and passed to constructors explicitly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/FranksOps/vetter/internal/model"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Credential names the environment variable holding an upstream API key.
type Credential string

const (
	SerperAPIKey   Credential = "SERPER_API_KEY"
	APIVoidAPIKey  Credential = "APIVOID_API_KEY"
	ScrapflyAPIKey Credential = "SCRAPFLY_API_KEY"
)

// Scrape backends.
const (
	ScrapeBackendScrapfly = "scrapfly"
	ScrapeBackendDirect   = "direct"
)

// Default upstream endpoints.
const (
	DefaultSerperSearchURL = "https://google.serper.dev/search"
	DefaultSerperScrapeURL = "https://google.serper.dev/scrape"
	DefaultAPIVoidURL      = "https://endpoint.apivoid.com/domainage/v1/pay-as-you-go/"
	DefaultScrapflyURL     = "https://api.scrapfly.io/scrape"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	SerperAPIKey   string
	APIVoidAPIKey  string
	ScrapflyAPIKey string

	SerperSearchURL string
	SerperScrapeURL string
	APIVoidURL      string
	ScrapflyURL     string

	// Timeout bounds every outbound call. Calls are never retried.
	Timeout time.Duration
	// Pacing is the minimum spacing between calls to the same backend.
	Pacing      time.Duration
	Concurrency int

	// ReviewLocation and FirmographicLocation are the search locations used by
	// the enrichment lookups.
	ReviewLocation               string
	FirmographicLocation         string
	RequireKeyInFirmographicLink bool

	ScrapeBackend string
	ProxyFile     string
	ProxyCountry  string
	Fingerprint   string
	RespectRobots bool

	StorageBackend string
	StorageDSN     string

	MetricsPort int

	LogLevel  string
	LogFormat string
	LogFile   string
}

// MissingError lists every credential absent from the environment.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Vars, ", ")
}

func (e *MissingError) Unwrap() error { return model.ErrConfiguration }

// SetDefaults registers every option with its default and binds the
// credential environment variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("serper-search-url", DefaultSerperSearchURL)
	v.SetDefault("serper-scrape-url", DefaultSerperScrapeURL)
	v.SetDefault("apivoid-url", DefaultAPIVoidURL)
	v.SetDefault("scrapfly-url", DefaultScrapflyURL)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("pacing", time.Second)
	v.SetDefault("concurrency", 1)
	v.SetDefault("review-location", "United States")
	v.SetDefault("firmographic-location", "United States")
	v.SetDefault("require-key-in-firmographic-link", false)
	v.SetDefault("scrape-backend", ScrapeBackendScrapfly)
	v.SetDefault("proxy-country", "US")
	v.SetDefault("fingerprint", "chrome")
	v.SetDefault("storage", "none")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("log-file", "vetter.log")

	v.SetEnvPrefix("VETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Credentials keep their conventional unprefixed names.
	_ = v.BindEnv("serper-api-key", string(SerperAPIKey))
	_ = v.BindEnv("apivoid-api-key", string(APIVoidAPIKey))
	_ = v.BindEnv("scrapfly-api-key", string(ScrapflyAPIKey))
}

// Load resolves a Config from v. It validates option values but not the
// presence of credentials; commands call Require for the ones they use.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		SerperAPIKey:                 strings.TrimSpace(v.GetString("serper-api-key")),
		APIVoidAPIKey:                strings.TrimSpace(v.GetString("apivoid-api-key")),
		ScrapflyAPIKey:               strings.TrimSpace(v.GetString("scrapfly-api-key")),
		SerperSearchURL:              v.GetString("serper-search-url"),
		SerperScrapeURL:              v.GetString("serper-scrape-url"),
		APIVoidURL:                   v.GetString("apivoid-url"),
		ScrapflyURL:                  v.GetString("scrapfly-url"),
		Timeout:                      v.GetDuration("timeout"),
		Pacing:                       v.GetDuration("pacing"),
		Concurrency:                  v.GetInt("concurrency"),
		ReviewLocation:               v.GetString("review-location"),
		FirmographicLocation:         v.GetString("firmographic-location"),
		RequireKeyInFirmographicLink: v.GetBool("require-key-in-firmographic-link"),
		ScrapeBackend:                strings.ToLower(v.GetString("scrape-backend")),
		ProxyFile:                    v.GetString("proxy-file"),
		ProxyCountry:                 strings.ToUpper(v.GetString("proxy-country")),
		Fingerprint:                  v.GetString("fingerprint"),
		RespectRobots:                v.GetBool("respect-robots"),
		StorageBackend:               strings.ToLower(v.GetString("storage")),
		StorageDSN:                   v.GetString("storage-dsn"),
		MetricsPort:                  v.GetInt("metrics-port"),
		LogLevel:                     v.GetString("log-level"),
		LogFormat:                    v.GetString("log-format"),
		LogFile:                      v.GetString("log-file"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.Timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	if c.Pacing < 0 {
		problems = append(problems, "pacing cannot be negative")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	switch c.ScrapeBackend {
	case ScrapeBackendScrapfly, ScrapeBackendDirect:
	default:
		problems = append(problems, fmt.Sprintf("unknown scrape backend %q", c.ScrapeBackend))
	}
	switch c.StorageBackend {
	case "none", "":
	case "sqlite", "postgres", "json", "csv":
		if c.StorageDSN == "" {
			problems = append(problems, fmt.Sprintf("storage %q needs a storage-dsn", c.StorageBackend))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage backend %q", c.StorageBackend))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s: %w", strings.Join(problems, "; "), model.ErrConfiguration)
	}
	return nil
}

// Require checks that every named credential is set. All missing names are
// reported together.
func (c *Config) Require(creds ...Credential) error {
	var missing []string
	for _, cred := range creds {
		if c.credential(cred) == "" {
			missing = append(missing, string(cred))
		}
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}

// EnrichmentCredentials lists what the aggregation stage calls. Scrapfly is
// only needed when it is the selected scrape backend.
func (c *Config) EnrichmentCredentials() []Credential {
	creds := []Credential{SerperAPIKey, APIVoidAPIKey}
	if c.ScrapeBackend == ScrapeBackendScrapfly {
		creds = append(creds, ScrapflyAPIKey)
	}
	return creds
}

func (c *Config) credential(cred Credential) string {
	switch cred {
	case SerperAPIKey:
		return c.SerperAPIKey
	case APIVoidAPIKey:
		return c.APIVoidAPIKey
	case ScrapflyAPIKey:
		return c.ScrapflyAPIKey
	default:
		return os.Getenv(string(cred))
	}
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Inputs are the run parameters supplied by the caller.
type Inputs struct {
	Topic   string `json:"topic"`
	Country string `json:"country"`
}

// Validate trims both fields and rejects empty values.
func (in *Inputs) Validate() error {
	in.Topic = strings.TrimSpace(in.Topic)
	in.Country = strings.TrimSpace(in.Country)
	if in.Topic == "" {
		return fmt.Errorf("config: topic must be a non-empty string: %w", model.ErrConfiguration)
	}
	if in.Country == "" {
		return fmt.Errorf("config: country must be a non-empty string: %w", model.ErrConfiguration)
	}
	return nil
}
