// Package config holds the server-side configuration: listen address,
// query limits, and database connection settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/NadeemAtDure/dhis2-core/lib/metadb"
)

type Config struct {
	Listen   Listen                `yaml:"listen"`
	Limits   Limits                `yaml:"limits"`
	Postgres metadb.PostgresConfig `yaml:"postgres"`
}

type Listen struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (l *Listen) setDefaults() error {
	if l.Host == "" {
		l.Host = "localhost"
	}
	if l.Port == 0 {
		l.Port = 8080
	}
	return nil
}

// Address returns the host:port string to bind.
func (l Listen) Address() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

type Limits struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	MaxQueryRows    int `yaml:"max_query_rows"`
	MaxImportEvents int `yaml:"max_import_events"`
}

func (l *Limits) setDefaults() error {
	if l.DefaultPageSize == 0 {
		l.DefaultPageSize = 50
	}
	if l.MaxPageSize == 0 {
		l.MaxPageSize = 1000
	}
	if l.MaxQueryRows == 0 {
		l.MaxQueryRows = 50000
	}
	if l.MaxImportEvents == 0 {
		l.MaxImportEvents = 10000
	}
	return nil
}

func (c *Config) setDefaults() error {
	if err := c.Listen.setDefaults(); err != nil {
		return fmt.Errorf("error setting defaults for listen: %w", err)
	}
	if err := c.Limits.setDefaults(); err != nil {
		return fmt.Errorf("error setting defaults for limits: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Postgres.PostgresDB == "" {
		return errors.New("no database configured")
	}
	if c.Limits.DefaultPageSize > c.Limits.MaxPageSize {
		return fmt.Errorf("default page size %d exceeds maximum %d", c.Limits.DefaultPageSize, c.Limits.MaxPageSize)
	}
	if c.Limits.MaxPageSize > c.Limits.MaxQueryRows {
		return fmt.Errorf("max page size %d exceeds max query rows %d", c.Limits.MaxPageSize, c.Limits.MaxQueryRows)
	}
	return nil
}

// Load reads a config from a filename, or parses it directly when
// given inline YAML/JSON starting with "{".
func Load(filenameOrData string) (*Config, error) {
	var config Config

	var data []byte

	if strings.HasPrefix(filenameOrData, "{") {
		data = []byte(filenameOrData)
	} else {
		content, err := os.ReadFile(filenameOrData)
		if err != nil {
			return nil, err
		}
		data = content
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.setDefaults(); err != nil {
		return nil, fmt.Errorf("error setting defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	return &config, nil
}
