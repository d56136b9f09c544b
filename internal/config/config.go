package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/frederic-klein/reqinstall/internal/index"
	"github.com/frederic-klein/reqinstall/internal/installer"
)

const (
	// AppName is the application name used for XDG directories.
	AppName = "reqinstall"
	// EnvPrefix prefixes environment overrides, e.g. REQINSTALL_INDEX_URL.
	// A double underscore separates nested keys: REQINSTALL_PIP__COMMAND.
	EnvPrefix = "REQINSTALL_"
)

// Config holds the resolved settings for a run.
type Config struct {
	IndexURL       string        `koanf:"index_url"`
	Destination    string        `koanf:"destination"`
	Pip            PipConfig     `koanf:"pip"`
	DockerImage    string        `koanf:"docker_image"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	VerifyReceipts bool          `koanf:"verify_receipts"`
	Verbosity      int           `koanf:"verbosity"`
}

// PipConfig configures the install command.
type PipConfig struct {
	Command []string `koanf:"command"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an explicit config file. It must exist when set.
	ConfigFile string
	// Overrides are applied last, typically from CLI flags the user set.
	Overrides map[string]interface{}
}

// Defaults returns the built-in settings as a flat koanf map.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"index_url":       index.DefaultURL,
		"destination":     filepath.Join(dataHome(), AppName, "packages"),
		"pip.command":     installer.DefaultPipCommand,
		"docker_image":    "",
		"request_timeout": "30s",
		"verify_receipts": false,
		"verbosity":       0,
	}
}

// DefaultConfigFile returns the config file read when none is given.
func DefaultConfigFile() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = xdg.ConfigHome
	}
	return filepath.Join(configHome, AppName, "config.yaml")
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	return xdg.DataHome
}

// Load merges defaults, the config file, environment and overrides, in that
// order of increasing precedence.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	path := opts.ConfigFile
	if path == "" {
		if candidate := DefaultConfigFile(); fileExists(candidate) {
			path = candidate
		}
	} else if !fileExists(path) {
		return nil, fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
	}
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	// 3. Environment
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Overrides
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(" "),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no run could succeed with.
func (c *Config) Validate() error {
	var errs []error

	if c.IndexURL == "" {
		errs = append(errs, errors.New("index_url must not be empty"))
	} else if u, err := url.Parse(c.IndexURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("index_url %q must be an http(s) URL", c.IndexURL))
	}
	if c.Destination == "" {
		errs = append(errs, errors.New("destination must not be empty"))
	}
	if len(c.Pip.Command) == 0 || c.Pip.Command[0] == "" {
		errs = append(errs, errors.New("pip.command must not be empty"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q (use .yaml or .toml)", filepath.Ext(path))
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
