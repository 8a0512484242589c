package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadInlineWithDefaults(t *testing.T) {
	cfg, err := Load(`{"postgres": {"dbname": "dhis2", "host": "localhost", "user": "dhis"}}`)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Listen.Address() != "localhost:8080" {
		t.Errorf("default listen address = %q", cfg.Listen.Address())
	}
	if cfg.Limits.DefaultPageSize != 50 {
		t.Errorf("default page size = %d", cfg.Limits.DefaultPageSize)
	}
	if cfg.Limits.MaxPageSize != 1000 {
		t.Errorf("default max page size = %d", cfg.Limits.MaxPageSize)
	}
	if cfg.Limits.MaxQueryRows != 50000 {
		t.Errorf("default max query rows = %d", cfg.Limits.MaxQueryRows)
	}
	if cfg.Postgres.PostgresDB != "dhis2" {
		t.Errorf("postgres dbname = %q", cfg.Postgres.PostgresDB)
	}
}

func TestLoadFromFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
listen:
  host: 0.0.0.0
  port: 9090
limits:
  default_page_size: 25
postgres:
  dbname: dhis2
  host: dbhost
  user: dhis
`)
	if err := os.WriteFile(filename, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(filename)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Listen.Address() != "0.0.0.0:9090" {
		t.Errorf("listen address = %q", cfg.Listen.Address())
	}
	if cfg.Limits.DefaultPageSize != 25 {
		t.Errorf("page size = %d", cfg.Limits.DefaultPageSize)
	}
	if cfg.Limits.MaxPageSize != 1000 {
		t.Errorf("max page size should still default, got %d", cfg.Limits.MaxPageSize)
	}
}

func TestLoadRejectsMissingDatabase(t *testing.T) {
	if _, err := Load(`{"listen": {"port": 9090}}`); err == nil {
		t.Fatal("expected validation error without a database")
	}
}

func TestLoadRejectsPageSizeAboveCap(t *testing.T) {
	_, err := Load(`{"postgres": {"dbname": "dhis2"}, "limits": {"default_page_size": 500, "max_page_size": 100}}`)
	if err == nil {
		t.Fatal("expected validation error for default page size above the cap")
	}
}

func TestLoadRejectsMaxPageSizeAboveQueryRows(t *testing.T) {
	_, err := Load(`{"postgres": {"dbname": "dhis2"}, "limits": {"max_page_size": 1000, "max_query_rows": 500}}`)
	if err == nil {
		t.Fatal("expected validation error for max page size above the query row limit")
	}
}
