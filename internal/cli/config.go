package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/translate"
)

const (
	envPrefix         = "QUERYLIFT"
	defaultConfigName = "querylift"
	defaultDialect    = "postgres"
	defaultCacheSize  = 256
)

// Config is the resolved CLI configuration.
//
// Precedence, highest first: explicit flags, QUERYLIFT_* environment
// variables, the config file, flag defaults. Keys use the flag names, so
// QUERYLIFT_CACHE_SIZE and "cache-size:" both set CacheSize.
type Config struct {
	Dialect         string `mapstructure:"dialect"`
	Model           string `mapstructure:"model"`
	CacheSize       int    `mapstructure:"cache-size"`
	MaxInlineList   int    `mapstructure:"max-inline-list"`
	ParameterPrefix string `mapstructure:"parameter-prefix"`
	Verbose         bool   `mapstructure:"verbose"`
	Format          string `mapstructure:"format"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Dialect:         defaultDialect,
		CacheSize:       defaultCacheSize,
		MaxInlineList:   translate.DefaultMaxInlineList,
		ParameterPrefix: "p",
		Format:          "text",
	}
}

// LoadConfig resolves the configuration. When path is empty an optional
// querylift.yaml in the working directory is read; an explicit path must
// exist.
func LoadConfig(fsys afero.Fs, path string, flags *pflag.FlagSet) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetFs(fsys)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("dialect", def.Dialect)
	v.SetDefault("model", def.Model)
	v.SetDefault("cache-size", def.CacheSize)
	v.SetDefault("max-inline-list", def.MaxInlineList)
	v.SetDefault("parameter-prefix", def.ParameterPrefix)
	v.SetDefault("verbose", def.Verbose)
	v.SetDefault("format", def.Format)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flags and env vars cannot constrain.
func (c *Config) Validate() error {
	if _, err := sqlprint.Lookup(c.Dialect); err != nil {
		return err
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache-size must not be negative, got %d", c.CacheSize)
	}
	if c.ParameterPrefix == "" {
		return errors.New("parameter-prefix must not be empty")
	}
	return nil
}

// SQLDialect resolves the configured dialect.
func (c *Config) SQLDialect() sqlprint.Dialect {
	d, err := sqlprint.Lookup(c.Dialect)
	if err != nil {
		return sqlprint.Postgres
	}
	return d
}
