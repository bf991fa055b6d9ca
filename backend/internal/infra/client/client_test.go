package infra

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antrhizom/prompt-managerin/backend/internal/config"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClientPings(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Endpoint: server.Addr()})
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	defer client.Close()

	server.Close()
	if _, err := NewRedisClient(context.Background(), config.RedisConfig{Endpoint: server.Addr()}); err == nil {
		t.Fatalf("expected ping failure after server close")
	}
}

func TestParseEndpointWithDefault(t *testing.T) {
	cases := []struct {
		in      string
		host    string
		port    int
		wantErr bool
	}{
		{"redis", "redis", 6379, false},
		{"redis:6380", "redis", 6380, false},
		{" 10.0.0.1:7000 ", "10.0.0.1", 7000, false},
		{"", "", 0, true},
		{"redis:abc", "", 0, true},
	}
	for _, tc := range cases {
		host, port, err := parseEndpointWithDefault(tc.in, defaultRedisPort)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%q: err = %v", tc.in, err)
		}
		if !tc.wantErr && (host != tc.host || port != tc.port) {
			t.Fatalf("%q: got %s:%d", tc.in, host, port)
		}
	}
}

func TestOpenStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	db, sqlDB, err := OpenStore(context.Background(), config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer sqlDB.Close()
	if db.Dialector.Name() != "sqlite" {
		t.Fatalf("unexpected dialector %s", db.Dialector.Name())
	}
	if sqlDB.Stats().MaxOpenConnections != 1 {
		t.Fatalf("sqlite pool not limited to one connection")
	}
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := BuildMySQLDSN(config.MySQLConfig{Host: "db", Username: "pm", Password: "p@ss", Database: "prompts"})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "pm:p@ss@tcp(db:3306)/prompts") || !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("unexpected dsn %s", dsn)
	}
	if _, err := BuildMySQLDSN(config.MySQLConfig{Host: "db"}); err == nil {
		t.Fatalf("missing username accepted")
	}
	if _, err := buildDialector(config.StoreConfig{Driver: config.DriverPostgres}); err == nil {
		t.Fatalf("postgres without dsn accepted")
	}
}
