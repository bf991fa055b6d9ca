package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRuntimeDefaults(t *testing.T) {
	SetEnvFileLoadingForTest(false)
	t.Cleanup(func() { SetEnvFileLoadingForTest(true) })
	for _, key := range []string{"APP_ENV", "STORE_DRIVER", "SESSION_SECRET", "REDIS_ENDPOINT", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_REACT"} {
		t.Setenv(key, "")
	}

	rt, err := LoadRuntime()
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	if rt.Store.Driver != DriverSQLite || !filepath.IsAbs(rt.Store.SQLitePath) {
		t.Fatalf("unexpected store config %+v", rt.Store)
	}
	if rt.Session.Secret != devSessionSecret || rt.Session.TTL != defaultSessionTTL {
		t.Fatalf("unexpected session config %+v", rt.Session)
	}
	if rt.Redis.Enabled() {
		t.Fatalf("redis should be disabled without endpoint")
	}
	if rt.RateLimits.ReactLimit != 60 || rt.RateLimits.ReactWindow != time.Minute {
		t.Fatalf("unexpected react limit %+v", rt.RateLimits)
	}
}

func TestLoadRuntimeOverrides(t *testing.T) {
	SetEnvFileLoadingForTest(false)
	t.Cleanup(func() { SetEnvFileLoadingForTest(true) })
	t.Setenv("STORE_DRIVER", "MySQL")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("SESSION_TTL", "3600")
	t.Setenv("RATE_LIMIT_CREATE", "0")
	t.Setenv("RATE_LIMIT_REPORT_WINDOW", "90m")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	rt, err := LoadRuntime()
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	if rt.Store.Driver != DriverMySQL || rt.Store.MySQL.Port != 3307 {
		t.Fatalf("unexpected store config %+v", rt.Store)
	}
	if rt.Session.TTL != time.Hour {
		t.Fatalf("plain seconds not parsed: %v", rt.Session.TTL)
	}
	if rt.RateLimits.CreateLimit != 0 || rt.RateLimits.ReportWindow != 90*time.Minute {
		t.Fatalf("unexpected rate limits %+v", rt.RateLimits)
	}
	if strings.Join(rt.AllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Fatalf("unexpected origins %v", rt.AllowedOrigins)
	}
}

func TestLoadRuntimeErrors(t *testing.T) {
	SetEnvFileLoadingForTest(false)
	t.Cleanup(func() { SetEnvFileLoadingForTest(true) })

	cases := []struct {
		name string
		env  map[string]string
	}{
		{"driver", map[string]string{"STORE_DRIVER": "oracle"}},
		{"port", map[string]string{"MYSQL_PORT": "abc"}},
		{"window", map[string]string{"RATE_LIMIT_USAGE_WINDOW": "soon"}},
		{"secret", map[string]string{"APP_ENV": "production", "SESSION_SECRET": ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadRuntime(); err == nil {
				t.Fatalf("expected error for %v", tc.env)
			}
		})
	}
}

func TestCatalogManagerFillsMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "roles:\n  - Lehrperson\n  - Sonstige\ndefault_role: Sonstige\noutput_formats: []\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	m, err := NewCatalogManager(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	catalog := m.Get()
	if len(catalog.Roles) != 2 || catalog.DefaultRole != "Sonstige" {
		t.Fatalf("file roles not applied: %+v", catalog.Roles)
	}
	if len(catalog.OutputFormats) == 0 || len(catalog.UseCases) == 0 || len(catalog.Reactions) != 5 {
		t.Fatalf("defaults not filled: %+v", catalog)
	}
}

func TestCatalogManagerWithoutFile(t *testing.T) {
	m, err := NewCatalogManager("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if m.Get().DefaultRole == "" {
		t.Fatalf("builtin catalog missing")
	}
	m.Watch()

	if _, err := NewCatalogManager(filepath.Join(t.TempDir(), "broken.yaml")); err == nil {
		t.Fatalf("missing catalog file should fail")
	}
}
