// Package dhisclient is the client-side API: configuration discovery,
// authenticated requests, and helpers for the query and import surfaces.
package dhisclient

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
	"github.com/NadeemAtDure/dhis2-core/lib/logging"
)

type SecretConfig struct {
	Filename string `yaml:"filename"`
	EnvVar   string `yaml:"env_var"`
}

type UserConfig struct {
	Username string        `yaml:"username"`
	Password *SecretConfig `yaml:"password"`
}

type ServerConfig struct {
	Scheme      string        `yaml:"scheme"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Aliases     []string      `yaml:"aliases"`
	Users       []*UserConfig `yaml:"users"`
	DefaultUser string        `yaml:"default_user"`
}

type ConfigFile struct {
	Filename string          `yaml:"filename"`
	Servers  []*ServerConfig `yaml:"servers"`
}

type Config struct {
	ConfigFiles []*ConfigFile `yaml:"config_files"`
}

func DefaultConfigFilename() (string, error) {
	return homedir.Expand("~/.config/dhis2/dhis2-client.yaml")
}

func ConfigFilenames(ctx context.Context) ([]string, error) {
	logger := logging.FromContext(ctx)

	var rv []string

	if env := os.Getenv("DHIS2_CLIENT_CONFIG"); env != "" {
		rv = append(rv, strings.Split(env, ":")...)
	}

	defaultFilename, err := DefaultConfigFilename()
	if err != nil {
		logger.Warn("failed to determine default config filename", zap.Error(err))
	} else {
		rv = append(rv, defaultFilename)
	}

	return rv, nil
}

func ReadSecret(secret *SecretConfig) (string, error) {
	if secret == nil {
		return "", apierror.New(
			apierror.WithPublicMessage("no secret configuration provided"),
		)
	}

	if secret.Filename != "" {
		data, err := os.ReadFile(secret.Filename)
		if err != nil {
			return "", apierror.New(
				apierror.WithPublicMessage("failed to read secret file"),
				apierror.WithPublicData("filename", secret.Filename),
				apierror.WithPublicData("error", err.Error()),
			)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if secret.EnvVar != "" {
		return os.Getenv(secret.EnvVar), nil
	}

	return "", nil
}

func LoadConfig(ctx context.Context) (*Config, error) {
	logger := logging.FromContext(ctx)

	filenames, err := ConfigFilenames(ctx)
	if err != nil {
		return nil, err
	}

	var configs []*ConfigFile

	for _, fn := range filenames {
		if _, err := os.Stat(fn); err != nil {
			if os.IsNotExist(err) {
				if len(configs) == 0 {
					logger.Warn("config file does not exist", zap.String("filename", fn))
				}
				continue
			}
			return nil, err
		}

		fn, _ := filepath.Abs(fn)

		data, err := os.ReadFile(fn)
		if err != nil {
			return nil, apierror.New(
				apierror.WithPublicMessage("failed to read config file"),
				apierror.WithPublicData("filename", fn),
				apierror.WithPublicData("error", err.Error()),
			)
		}

		var cfg ConfigFile
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, apierror.New(
				apierror.WithPublicMessage("failed to parse config file"),
				apierror.WithPublicData("filename", fn),
				apierror.WithPublicData("error", err.Error()),
			)
		}

		cfg.Filename = fn
		configs = append(configs, &cfg)
	}

	return &Config{ConfigFiles: configs}, nil
}

func (c *Config) ServerConfigs() []*ServerConfig {
	var rv []*ServerConfig
	for _, cf := range c.ConfigFiles {
		rv = append(rv, cf.Servers...)
	}
	return rv
}

func (s *ServerConfig) HasAlias(alias string) bool {
	for _, a := range s.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

func (s *ServerConfig) GetUserConfig(username string) *UserConfig {
	if username == "" {
		return nil
	}
	for _, u := range s.Users {
		if u.Username == username {
			return u
		}
	}
	return nil
}
