// Package config loads the command line configuration from a YAML file and
// PLUGINS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	appName   = "plugins"
	fileName  = "config"
	fileType  = "yaml"
	envPrefix = "PLUGINS"
)

type Config struct {
	IndexURL    string   `mapstructure:"index_url"`
	Tag         string   `mapstructure:"tag"`
	Host        string   `mapstructure:"host"`
	Namespace   string   `mapstructure:"namespace"`
	CacheDir    string   `mapstructure:"cache_dir"`
	Concurrency int      `mapstructure:"concurrency"`
	SiteDirs    []string `mapstructure:"site_dirs"`
	UserSite    string   `mapstructure:"user_site"`
	PluginsDir  string   `mapstructure:"plugins_dir"`
	PluginsBase string   `mapstructure:"plugins_base"`
	Python      string   `mapstructure:"python"`
	UserAgent   string   `mapstructure:"user_agent"`
}

// Dir returns the configuration directory, e.g. ~/.config/plugins.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", appName)
	}
	return filepath.Join(dir, appName)
}

// FilePath returns the default configuration file path.
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".", ".cache", appName)
	}
	return filepath.Join(dir, appName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("index_url", "https://pypi.org/pypi")
	v.SetDefault("tag", "")
	v.SetDefault("host", "plover")
	v.SetDefault("namespace", "")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("concurrency", 4)
	v.SetDefault("site_dirs", []string{})
	v.SetDefault("user_site", "")
	v.SetDefault("plugins_dir", "")
	v.SetDefault("plugins_base", "")
	v.SetDefault("python", "python3")
	v.SetDefault("user_agent", appName)
}

// Load reads the configuration. An empty path means the default file, which
// may be absent; an explicit path must exist. Environment variables such as
// PLUGINS_INDEX_URL override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = FilePath()
	}
	v.SetConfigFile(path)
	v.SetConfigType(fileType)

	if _, err := os.Stat(path); err == nil || explicit {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Tag == "" {
		cfg.Tag = cfg.Host + "_plugin"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = cfg.Host + ".plugins"
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	return &cfg, nil
}
