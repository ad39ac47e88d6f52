// Package config resolves run configuration from flags, environment
// variables, an optional .env file and an optional firstlink.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/firstlink/internal/publish"
	"github.com/FranksOps/firstlink/internal/serp"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration validation errors.
var (
	ErrInvalidEngine        = errors.New("engine must be one of: chrome, playwright, http")
	ErrMissingInput         = errors.New("input_file is required")
	ErrMissingOutput        = errors.New("output_file is required")
	ErrInvalidLimit         = errors.New("limit must be an integer")
	ErrInvalidDelay         = errors.New("delay must be a non-negative number of seconds or a duration")
	ErrInvalidJitter        = errors.New("jitter must be between 0 and 1")
	ErrInvalidTimeout       = errors.New("render_timeout must be positive")
	ErrInvalidMirror        = errors.New("mirrors must be a list of: json, sqlite, postgres")
	ErrMissingPostgresDSN   = errors.New("postgres_dsn is required for the postgres mirror")
	ErrInvalidSummaryFormat = errors.New("summary_format must be one of: none, text, json, yaml")
)

// Engines.
const (
	EngineChrome     = "chrome"
	EnginePlaywright = "playwright"
	EngineHTTP       = "http"
)

// Mirrors.
const (
	MirrorJSON     = "json"
	MirrorSQLite   = "sqlite"
	MirrorPostgres = "postgres"
)

// Config holds every policy value of a run.
type Config struct {
	InputFile  string
	OutputFile string
	// Limit keeps only the first Limit queries; <= 0 keeps all.
	Limit int
	Delay time.Duration
	// Jitter widens Delay by a random fraction in [0, Jitter].
	Jitter        float64
	RenderTimeout time.Duration

	Engine string
	// Preset names a serp preset; empty picks one suited to Engine.
	Preset         string
	SearchURL      string
	ResultSelector string
	UserAgent      string
	Headless       bool
	BrowserPath    string
	InstallDriver  bool
	Fingerprint    string

	LogLevel  string
	LogFormat string
	LogFile   string

	MetricsPort   int
	SummaryFormat string

	Mirrors     []string
	JSONFile    string
	SQLiteDSN   string
	PostgresDSN string

	Publish publish.Config
}

// SetDefaults registers the default of every key on v. Registering every
// key is also what makes AutomaticEnv resolve it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("input_file", "inputs.txt")
	v.SetDefault("output_file", "output.csv")
	v.SetDefault("limit", "0")
	v.SetDefault("delay", "2s")
	v.SetDefault("jitter", 0.0)
	v.SetDefault("render_timeout", "10s")
	v.SetDefault("engine", EngineChrome)
	v.SetDefault("preset", "")
	v.SetDefault("search_url", "")
	v.SetDefault("result_selector", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("headless", true)
	v.SetDefault("browser_path", "")
	v.SetDefault("install_driver", false)
	v.SetDefault("fingerprint", "chrome")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("metrics_port", 0)
	v.SetDefault("summary_format", "none")
	v.SetDefault("mirrors", "")
	v.SetDefault("json_file", "results.jsonl")
	v.SetDefault("sqlite_dsn", "firstlink.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("publish.endpoint", "")
	v.SetDefault("publish.access_key", "")
	v.SetDefault("publish.secret_key", "")
	v.SetDefault("publish.bucket", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("publish.region", "")
	v.SetDefault("publish.secure", true)
	v.SetDefault("publish.create_bucket", false)
	v.SetDefault("publish.path_style", false)
}

// New returns a viper instance with defaults, unprefixed environment
// lookup (publish.bucket reads PUBLISH_BUCKET) and an optional config file.
// An empty configFile searches for firstlink.yaml in the working directory.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("firstlink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return v, nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	limit, err := parseLimit(v.GetString("limit"))
	if err != nil {
		return Config{}, err
	}
	delay, err := ParseDelay(v.GetString("delay"))
	if err != nil {
		return Config{}, err
	}
	timeout, err := ParseDelay(v.GetString("render_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidTimeout, v.GetString("render_timeout"))
	}

	cfg := Config{
		InputFile:      v.GetString("input_file"),
		OutputFile:     v.GetString("output_file"),
		Limit:          limit,
		Delay:          delay,
		Jitter:         v.GetFloat64("jitter"),
		RenderTimeout:  timeout,
		Engine:         strings.ToLower(strings.TrimSpace(v.GetString("engine"))),
		Preset:         v.GetString("preset"),
		SearchURL:      v.GetString("search_url"),
		ResultSelector: v.GetString("result_selector"),
		UserAgent:      v.GetString("user_agent"),
		Headless:       v.GetBool("headless"),
		BrowserPath:    v.GetString("browser_path"),
		InstallDriver:  v.GetBool("install_driver"),
		Fingerprint:    v.GetString("fingerprint"),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		LogFile:        v.GetString("log_file"),
		MetricsPort:    v.GetInt("metrics_port"),
		SummaryFormat:  strings.ToLower(v.GetString("summary_format")),
		Mirrors:        splitList(v.Get("mirrors")),
		JSONFile:       v.GetString("json_file"),
		SQLiteDSN:      v.GetString("sqlite_dsn"),
		PostgresDSN:    v.GetString("postgres_dsn"),
		Publish: publish.Config{
			Endpoint:     v.GetString("publish.endpoint"),
			AccessKey:    v.GetString("publish.access_key"),
			SecretKey:    v.GetString("publish.secret_key"),
			Bucket:       v.GetString("publish.bucket"),
			Prefix:       v.GetString("publish.prefix"),
			Region:       v.GetString("publish.region"),
			Secure:       v.GetBool("publish.secure"),
			CreateBucket: v.GetBool("publish.create_bucket"),
			PathStyle:    v.GetBool("publish.path_style"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineChrome, EnginePlaywright, EngineHTTP:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEngine, c.Engine)
	}
	if c.InputFile == "" {
		return ErrMissingInput
	}
	if c.OutputFile == "" {
		return ErrMissingOutput
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return ErrInvalidJitter
	}
	if c.RenderTimeout <= 0 {
		return ErrInvalidTimeout
	}
	for _, m := range c.Mirrors {
		switch m {
		case MirrorJSON, MirrorSQLite:
		case MirrorPostgres:
			if c.PostgresDSN == "" {
				return ErrMissingPostgresDSN
			}
		default:
			return fmt.Errorf("%w: %q", ErrInvalidMirror, m)
		}
	}
	switch c.SummaryFormat {
	case "", "none", "text", "json", "yaml":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSummaryFormat, c.SummaryFormat)
	}
	if _, err := c.EngineConfig(); err != nil {
		return err
	}
	return nil
}

// EngineConfig resolves the search engine settings: the preset for the
// configured engine, with any explicit overrides applied.
func (c *Config) EngineConfig() (serp.EngineConfig, error) {
	preset := c.Preset
	if preset == "" {
		preset = serp.PresetDuckDuckGo
		if c.Engine == EngineHTTP {
			preset = serp.PresetDuckDuckGoHTML
		}
	}
	ec, err := serp.Preset(preset)
	if err != nil {
		return serp.EngineConfig{}, fmt.Errorf("config: %w", err)
	}
	if c.SearchURL != "" {
		ec.SearchURL = c.SearchURL
	}
	if c.ResultSelector != "" {
		ec.ResultSelector = c.ResultSelector
	}
	if c.RenderTimeout > 0 {
		ec.RenderTimeout = c.RenderTimeout
	}
	return ec, nil
}

// ParseDelay accepts a plain number of seconds ("2", "0.5") or a Go
// duration ("1500ms").
func ParseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, s)
	}
	return d, nil
}

func parseLimit(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, s)
	}
	return n, nil
}

// splitList accepts a comma or space separated string or a string slice.
func splitList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = []string{v}
	case []string:
		parts = v
	case []any:
		for _, e := range v {
			parts = append(parts, fmt.Sprint(e))
		}
	}

	var out []string
	for _, p := range parts {
		for _, f := range strings.FieldsFunc(p, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}
