// Package config loads pdfstamp settings. Precedence, highest first: command
// line flags, PDFSTAMP_* environment variables, the YAML file, defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	flag "github.com/spf13/pflag"

	"github.com/lvillar/pdfstamp/imagepipe"
)

// MaxFileSize bounds the config file.
const MaxFileSize = 1 << 20

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrInvalid        = errors.New("invalid config")
)

// Config holds every setting of the pdfstamp binary.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Assets   AssetsConfig   `yaml:"assets"`
	Images   ImagesConfig   `yaml:"images"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	CORSOrigin      string   `yaml:"corsOrigin"` // frontend origin; empty disables CORS
	MaxBodyBytes    int64    `yaml:"maxBodyBytes"`
}

type AssetsConfig struct {
	Dir       string `yaml:"dir"`       // template.pdf, fonts/, placement.yaml and static images
	Placement string `yaml:"placement"` // overrides <dir>/placement.yaml
}

type ImagesConfig struct {
	FetchTimeout   Duration `yaml:"fetchTimeout"`
	MaxBytes       int64    `yaml:"maxBytes"`
	MaxWidth       int      `yaml:"maxWidth"`
	MaxHeight      int      `yaml:"maxHeight"`
	Quality        int      `yaml:"quality"`
	PixelsPerPoint float64  `yaml:"pixelsPerPoint"`
	LocalRoot      string   `yaml:"localRoot"` // empty disables local path sources
}

type AuthConfig struct {
	Secret string `yaml:"secret"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // memory, postgres or mysql
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string   `yaml:"addr"` // empty disables the image cache
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
	Prefix   string   `yaml:"prefix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Duration is a time.Duration written as "10s" in YAML.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(2 * time.Minute),
			ShutdownTimeout: Duration(15 * time.Second),
			MaxBodyBytes:    32 << 20,
		},
		Assets: AssetsConfig{Dir: "assets"},
		Images: ImagesConfig{
			FetchTimeout:   Duration(imagepipe.DefaultFetchTimeout),
			MaxBytes:       imagepipe.DefaultMaxBytes,
			MaxWidth:       imagepipe.DefaultBounds.MaxWidth,
			MaxHeight:      imagepipe.DefaultBounds.MaxHeight,
			Quality:        imagepipe.DefaultQuality,
			PixelsPerPoint: 1,
		},
		Storage:  StorageConfig{Dir: "storage/pdfs"},
		Database: DatabaseConfig{Driver: "memory"},
		Redis:    RedisConfig{TTL: Duration(imagepipe.DefaultCacheTTL)},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data into cfg, keeping values the data does not set.
func Parse(data []byte, cfg *Config) error {
	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrConfigParse, len(data), MaxFileSize)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigParse, err)
	}
	return nil
}

// envVars maps PDFSTAMP_* variables to the settings they override.
var envVars = map[string]func(c *Config, v string) error{
	"PDFSTAMP_ADDR":            func(c *Config, v string) error { c.Server.Addr = v; return nil },
	"PDFSTAMP_CORS_ORIGIN":     func(c *Config, v string) error { c.Server.CORSOrigin = v; return nil },
	"PDFSTAMP_ASSETS_DIR":      func(c *Config, v string) error { c.Assets.Dir = v; return nil },
	"PDFSTAMP_PLACEMENT":       func(c *Config, v string) error { c.Assets.Placement = v; return nil },
	"PDFSTAMP_FETCH_TIMEOUT":   func(c *Config, v string) error { return c.Images.FetchTimeout.UnmarshalText([]byte(v)) },
	"PDFSTAMP_LOCAL_ROOT":      func(c *Config, v string) error { c.Images.LocalRoot = v; return nil },
	"PDFSTAMP_JWT_SECRET":      func(c *Config, v string) error { c.Auth.Secret = v; return nil },
	"PDFSTAMP_STORAGE_DIR":     func(c *Config, v string) error { c.Storage.Dir = v; return nil },
	"PDFSTAMP_DB_DRIVER":       func(c *Config, v string) error { c.Database.Driver = v; return nil },
	"PDFSTAMP_DB_DSN":          func(c *Config, v string) error { c.Database.DSN = v; return nil },
	"PDFSTAMP_REDIS_ADDR":      func(c *Config, v string) error { c.Redis.Addr = v; return nil },
	"PDFSTAMP_REDIS_PASSWORD":  func(c *Config, v string) error { c.Redis.Password = v; return nil },
	"PDFSTAMP_REDIS_DB":        func(c *Config, v string) error { return atoi(v, &c.Redis.DB) },
	"PDFSTAMP_LOG_LEVEL":       func(c *Config, v string) error { c.Log.Level = v; return nil },
	"PDFSTAMP_LOG_FORMAT":      func(c *Config, v string) error { c.Log.Format = v; return nil },
	"PDFSTAMP_IMAGE_QUALITY":   func(c *Config, v string) error { return atoi(v, &c.Images.Quality) },
	"PDFSTAMP_IMAGE_MAX_BYTES": func(c *Config, v string) error { return atoi64(v, &c.Images.MaxBytes) },
}

func atoi(s string, dst *int) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func atoi64(s string, dst *int64) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// ApplyEnv overrides cfg from the environment. lookup is os.LookupEnv
// outside tests. Unknown PDFSTAMP_* names in environ are reported to warn.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool), environ []string, warn io.Writer) error {
	for name, set := range envVars {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, name, v, err)
		}
	}
	if warn != nil {
		for _, kv := range environ {
			name, _, _ := strings.Cut(kv, "=")
			if strings.HasPrefix(name, "PDFSTAMP_") && envVars[name] == nil && name != EnvConfigPath && !strings.HasPrefix(name, "PDFSTAMP_TEST_") {
				fmt.Fprintf(warn, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
	return nil
}

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "PDFSTAMP_CONFIG"

// Flags are the command line overrides. Only flags set on the command line
// replace file and environment values.
type Flags struct {
	fs         *flag.FlagSet
	ConfigPath string
	addr       string
	assets     string
	placement  string
	storage    string
	dbDriver   string
	dbDSN      string
	redisAddr  string
	localRoot  string
	logLevel   string
	logFormat  string
	cors       string
	timeout    time.Duration
}

// RegisterFlags adds the shared flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "config file (default $"+EnvConfigPath+")")
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address")
	fs.StringVar(&f.assets, "assets", "", "asset directory holding template.pdf, fonts/ and placement.yaml")
	fs.StringVar(&f.placement, "placement", "", "placement table file")
	fs.StringVar(&f.storage, "storage", "", "directory for rendered files")
	fs.StringVar(&f.dbDriver, "db-driver", "", "metadata store: memory, postgres or mysql")
	fs.StringVar(&f.dbDSN, "db-dsn", "", "database connection string")
	fs.StringVar(&f.redisAddr, "redis", "", "redis address for the remote image cache")
	fs.StringVar(&f.localRoot, "local-root", "", "directory local image paths are resolved in")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "", "text or json")
	fs.StringVar(&f.cors, "cors-origin", "", "frontend origin allowed by CORS")
	fs.DurationVar(&f.timeout, "fetch-timeout", 0, "remote image fetch timeout")
	return f
}

// Apply copies the flags set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	set := func(name string, dst *string, v string) {
		if f.fs.Changed(name) {
			*dst = v
		}
	}
	set("addr", &cfg.Server.Addr, f.addr)
	set("assets", &cfg.Assets.Dir, f.assets)
	set("placement", &cfg.Assets.Placement, f.placement)
	set("storage", &cfg.Storage.Dir, f.storage)
	set("db-driver", &cfg.Database.Driver, f.dbDriver)
	set("db-dsn", &cfg.Database.DSN, f.dbDSN)
	set("redis", &cfg.Redis.Addr, f.redisAddr)
	set("local-root", &cfg.Images.LocalRoot, f.localRoot)
	set("log-level", &cfg.Log.Level, f.logLevel)
	set("log-format", &cfg.Log.Format, f.logFormat)
	set("cors-origin", &cfg.Server.CORSOrigin, f.cors)
	if f.fs.Changed("fetch-timeout") {
		cfg.Images.FetchTimeout = Duration(f.timeout)
	}
}

// Resolve builds the effective config: defaults, then the file named by
// --config or $PDFSTAMP_CONFIG, then the environment, then flags.
func (f *Flags) Resolve(lookup func(string) (string, bool), environ []string, warn io.Writer) (*Config, error) {
	path := f.ConfigPath
	if path == "" {
		path, _ = lookup(EnvConfigPath)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, lookup, environ, warn); err != nil {
		return nil, err
	}
	f.Apply(cfg)
	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if c.Assets.Dir == "" {
		bad("assets.dir is required")
	}
	if c.Images.FetchTimeout <= 0 {
		bad("images.fetchTimeout must be positive")
	}
	if c.Images.MaxBytes <= 0 {
		bad("images.maxBytes must be positive")
	}
	if c.Images.MaxWidth <= 0 || c.Images.MaxHeight <= 0 {
		bad("images.maxWidth and images.maxHeight must be positive")
	}
	if c.Images.Quality < 1 || c.Images.Quality > 100 {
		bad("images.quality must be within 1..100, got %d", c.Images.Quality)
	}
	if c.Images.PixelsPerPoint <= 0 {
		bad("images.pixelsPerPoint must be positive")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres", "mysql":
		if c.Database.DSN == "" {
			bad("database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		bad("database.driver must be memory, postgres or mysql, got %q", c.Database.Driver)
	}
	if c.Redis.Addr != "" && c.Redis.TTL <= 0 {
		bad("redis.ttl must be positive")
	}
	if _, err := c.Log.level(); err != nil {
		bad("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		bad("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		bad("server timeouts must not be negative")
	}
	return errors.Join(errs...)
}

// ValidateServe adds the checks only the HTTP server needs.
func (c *Config) ValidateServe() error {
	err := c.Validate()
	if c.Auth.Secret == "" {
		err = errors.Join(err, fmt.Errorf("%w: auth.secret is required (set PDFSTAMP_JWT_SECRET)", ErrInvalid))
	}
	if c.Storage.Dir == "" {
		err = errors.Join(err, fmt.Errorf("%w: storage.dir is required", ErrInvalid))
	}
	return err
}

func (l LogConfig) level() (slog.Level, error) {
	var lv slog.Level
	err := lv.UnmarshalText([]byte(l.Level))
	return lv, err
}

// Handler returns the slog handler described by l, writing to w.
func (l LogConfig) Handler(w io.Writer) (slog.Handler, error) {
	lv, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lv}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts), nil
	}
	return slog.NewTextHandler(w, opts), nil
}
