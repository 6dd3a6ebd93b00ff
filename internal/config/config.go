// Package config loads parcelmap settings from defaults, an optional
// parcelmap.yaml, a .env file, PARCELMAP_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Cadastre   CadastreConfig   `mapstructure:"cadastre"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Report     ReportConfig     `mapstructure:"report"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
}

type CadastreConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// CacheConfig selects the layer cache. RedisURL wins over Dir; both empty
// disables caching.
type CacheConfig struct {
	Dir      string        `mapstructure:"dir"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ReportConfig struct {
	Level     int     `mapstructure:"level"`
	Margin    float64 `mapstructure:"margin"`
	Page      string  `mapstructure:"page"`
	Output    string  `mapstructure:"output"`
	Shapefile string  `mapstructure:"shapefile"`
}

type ProjectionConfig struct {
	Engine string `mapstructure:"engine"`
}

// DatabaseConfig holds the Oracle connection used to archive surfaces.
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	Service        string `mapstructure:"service"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	WalletLocation string `mapstructure:"wallet_location"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Flags returns the command-line flags that override configuration keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("parcelmap", pflag.ContinueOnError)
	fs.String("config", "", "path to a parcelmap.yaml file")
	fs.IntP("level", "l", 0, "report level 1-4 (situation, buildings, surfaces, dossier)")
	fs.StringP("output", "o", "", "PDF output path")
	fs.String("page", "", "page size: a4, a4r, a3, a3r")
	fs.Float64("margin", 0, "bbox margin as a fraction of the extent")
	fs.String("shapefile", "", "also write geometries to this .shp file")
	fs.String("engine", "", "projection engine: proj4 or analytic")
	fs.String("cache-dir", "", "directory cache for downloaded layers")
	fs.String("redis-url", "", "redis URL for the layer cache")
	fs.Bool("archive", false, "archive surfaces to the Oracle database")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "auto, text or json")
	return fs
}

// flagKeys maps flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"level":      "report.level",
	"output":     "report.output",
	"page":       "report.page",
	"margin":     "report.margin",
	"shapefile":  "report.shapefile",
	"engine":     "projection.engine",
	"cache-dir":  "cache.dir",
	"redis-url":  "cache.redis_url",
	"archive":    "database.enabled",
	"log-level":  "log.level",
	"log-format": "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cadastre.base_url", "https://cadastre.data.gouv.fr/data/etalab-cadastre/latest/geojson/communes")
	v.SetDefault("cadastre.timeout", 30*time.Second)
	v.SetDefault("cadastre.concurrency", 4)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("report.level", 3)
	v.SetDefault("report.margin", 0.1)
	v.SetDefault("report.page", "a4r")
	v.SetDefault("report.output", "parcelmap.pdf")
	v.SetDefault("report.shapefile", "")
	v.SetDefault("projection.engine", "proj4")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "1521")
	v.SetDefault("database.service", "XE")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.wallet_location", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
}

// configType derives the decoder from the file extension; files without one
// are read as YAML.
func configType(path string) string {
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		return strings.ToLower(ext)
	}
	return "yaml"
}

// Load builds the configuration. fs may be nil; only flags the user actually
// set override lower layers.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	readEnvFile(v, ".env")

	path := ""
	if fs != nil {
		path, _ = fs.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType(path))
	} else {
		v.SetConfigName("parcelmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	if err := v.MergeInConfig(); err != nil {
		// Continue even if file is not found
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// PARCELMAP_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PARCELMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readEnvFile lifts DB_* keys from a dotenv file into the defaults, so the
// YAML file and the environment still win. A missing file is fine.
func readEnvFile(v *viper.Viper, name string) {
	env := viper.New()
	env.SetConfigFile(name)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return
	}
	for key, target := range map[string]string{
		"db_host":            "database.host",
		"db_port":            "database.port",
		"db_service":         "database.service",
		"db_username":        "database.username",
		"db_password":        "database.password",
		"db_wallet_location": "database.wallet_location",
	} {
		if env.IsSet(key) {
			v.SetDefault(target, env.GetString(key))
		}
	}
}

// Validate checks that the configuration is usable and reports every problem
// at once.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.Cadastre.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("cadastre.base_url must be an absolute URL, got %q", c.Cadastre.BaseURL))
	}
	if c.Cadastre.Timeout <= 0 {
		errs = append(errs, "cadastre.timeout must be positive")
	}
	if c.Cadastre.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("cadastre.concurrency must be at least 1, got %d", c.Cadastre.Concurrency))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must not be negative")
	}
	if c.Report.Level < 1 || c.Report.Level > 4 {
		errs = append(errs, fmt.Sprintf("report.level must be 1-4, got %d", c.Report.Level))
	}
	if c.Report.Margin < 0 {
		errs = append(errs, fmt.Sprintf("report.margin must not be negative, got %g", c.Report.Margin))
	}
	switch strings.ToLower(c.Report.Page) {
	case "a4", "a4r", "a3", "a3r":
	default:
		errs = append(errs, fmt.Sprintf("report.page must be a4, a4r, a3 or a3r, got %q", c.Report.Page))
	}
	if c.Report.Output == "" {
		errs = append(errs, "report.output is required")
	}
	switch c.Projection.Engine {
	case "proj4", "analytic":
	default:
		errs = append(errs, fmt.Sprintf("projection.engine must be proj4 or analytic, got %q", c.Projection.Engine))
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Username == "" {
			errs = append(errs, "database.username is required")
		}
		if c.Database.Service == "" {
			errs = append(errs, "database.service is required")
		}
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be auto, text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
