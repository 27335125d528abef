package catalog

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := LoadServerConfig()

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}

	if cfg.Host != DefaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, DefaultHost)
	}

	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, DefaultDataDir)
	}

	if cfg.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v, want %v", cfg.FlushInterval, DefaultFlushInterval)
	}

	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestLoadServerConfigFromEnvironment(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("CATALOG_PORT", "9152")
	t.Setenv("CATALOG_HOST", "127.0.0.1")
	t.Setenv("DATA_DIR", "/var/lib/tradecore")
	t.Setenv("FLUSH_INTERVAL", "2s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := LoadServerConfig()

	if cfg.Port != 9152 {
		t.Errorf("Port = %d, want 9152", cfg.Port)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}

	if cfg.DataDir != "/var/lib/tradecore" {
		t.Errorf("DataDir = %q, want /var/lib/tradecore", cfg.DataDir)
	}

	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("FlushInterval = %v, want 2s", cfg.FlushInterval)
	}

	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestServerConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := func() *ServerConfig {
		cfg := LoadServerConfig()

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr error
	}{
		{name: "valid config", mutate: func(*ServerConfig) {}, wantErr: nil},
		{name: "port too low", mutate: func(c *ServerConfig) { c.Port = 0 }, wantErr: ErrInvalidPort},
		{name: "port too high", mutate: func(c *ServerConfig) { c.Port = 70000 }, wantErr: ErrInvalidPort},
		{name: "empty host", mutate: func(c *ServerConfig) { c.Host = "" }, wantErr: ErrEmptyHost},
		{name: "empty data dir", mutate: func(c *ServerConfig) { c.DataDir = "" }, wantErr: ErrEmptyDataDir},
		{name: "zero flush interval", mutate: func(c *ServerConfig) { c.FlushInterval = 0 }, wantErr: ErrInvalidTimeout},
		{name: "negative read timeout", mutate: func(c *ServerConfig) { c.ReadTimeout = -time.Second }, wantErr: ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}

				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfigAddress(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &ServerConfig{Host: "localhost", Port: 50052}

	if got := cfg.Address(); got != "localhost:50052" {
		t.Errorf("Address() = %q, want localhost:50052", got)
	}
}

func TestServerConfigDatabasePath(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &ServerConfig{DataDir: "data"}

	want := filepath.Join("data", DatabaseFileName)
	if got := cfg.DatabasePath(); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
}
