package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "does-not-exist")
	cfg, err := Load("", nil, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070", cfg.Addr)
	}
	if cfg.Registry.MaxRooms != 10 || cfg.Registry.MaxMembers != 50 {
		t.Errorf("Registry = %+v, want 10/50", cfg.Registry)
	}
	if cfg.Mailbox.Token() != 'A' || cfg.Mailbox.KeyPath != "/tmp" {
		t.Errorf("Mailbox key = %q/%q", cfg.Mailbox.KeyPath, cfg.Mailbox.KeyToken)
	}
	if cfg.Client.ReceiveBackoff != 100*time.Millisecond {
		t.Errorf("ReceiveBackoff = %v, want 100ms", cfg.Client.ReceiveBackoff)
	}
	if cfg.Router.EvictStale {
		t.Error("EvictStale = true, want false")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
addr: ":9000"
registry:
  max_rooms: 3
log:
  format: json
mailbox:
  rate_interval: 2s
`)
	t.Setenv("RELAY_REGISTRY_MAX_MEMBERS", "7")
	t.Setenv("RELAY_ROUTER_EVICT_STALE", "true")

	cfg, err := Load(path, nil, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.Registry.MaxRooms != 3 {
		t.Errorf("MaxRooms = %d, want 3", cfg.Registry.MaxRooms)
	}
	if cfg.Registry.MaxMembers != 7 {
		t.Errorf("MaxMembers = %d, want 7 from env", cfg.Registry.MaxMembers)
	}
	if !cfg.Router.EvictStale {
		t.Error("EvictStale = false, want true from env")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.Mailbox.RateInterval != 2*time.Second {
		t.Errorf("RateInterval = %v, want 2s", cfg.Mailbox.RateInterval)
	}
}

func TestLoad_Flags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", ":7070", "")
	if err := fs.Parse([]string{"--addr", ":8181"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	t.Setenv("CONFIG_ENV", "does-not-exist")

	cfg, err := Load("", fs, map[string]string{"addr": "addr"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8181" {
		t.Errorf("Addr = %q, want :8181", cfg.Addr)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil, nil); err == nil {
		t.Error("Load() with missing explicit file returned nil error")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"zero rooms", "registry:\n  max_rooms: 0\n", ErrInvalidCapacity},
		{"long token", "mailbox:\n  key_token: AB\n", ErrInvalidKeyToken},
		{"bad format", "log:\n  format: xml\n", ErrInvalidFormat},
		{"zero backoff", "client:\n  receive_backoff: 0s\n", ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}
