package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerRequiresSigningSecret(t *testing.T) {
	if _, err := LoadServer(NewServerViper()); err == nil {
		t.Fatalf("expected missing signing secret to fail")
	}
}

func TestLoadServerReadsEnvironment(t *testing.T) {
	t.Setenv("NOTESYNC_AUTH_SIGNING_SECRET", "secret")
	t.Setenv("NOTESYNC_HTTP_ADDRESS", "127.0.0.1:9999")
	t.Setenv("NOTESYNC_AUTH_TOKEN_TTL", "90m")

	cfg, err := LoadServer(NewServerViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9999" {
		t.Fatalf("unexpected address %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 90*time.Minute {
		t.Fatalf("unexpected ttl %s", cfg.TokenTTL)
	}
	if cfg.DatabasePath != defaultServerDatabasePath || cfg.TokenIssuer != defaultTokenIssuer {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
	if cfg.Log.Level != defaultLogLevel || cfg.Log.MaxSizeMB != defaultLogMaxSizeMB {
		t.Fatalf("unexpected log defaults %#v", cfg.Log)
	}
}

func TestLoadClientRequiresUser(t *testing.T) {
	if _, err := LoadClient(NewClientViper()); err == nil {
		t.Fatalf("expected missing user to fail")
	}
}

func TestLoadClientReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notesync.yaml")
	content := "user:\n  id: alice\nremote:\n  url: https://notes.example.com\n  token: abc\n  timeout: 2s\noffline: true\nlog:\n  file: /tmp/notesync.log\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	configViper := NewClientViper()
	configViper.SetConfigFile(path)
	if err := configViper.ReadInConfig(); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	cfg, err := LoadClient(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.UserID != "alice" || cfg.RemoteURL != "https://notes.example.com" || !cfg.Offline {
		t.Fatalf("unexpected client config %#v", cfg)
	}
	if cfg.RemoteTimeout != 2*time.Second || cfg.RemoteMaxRetries != defaultRemoteMaxRetries {
		t.Fatalf("unexpected remote settings %#v", cfg)
	}
	if cfg.Log.FilePath != "/tmp/notesync.log" {
		t.Fatalf("unexpected log file %q", cfg.Log.FilePath)
	}
	if !cfg.RemoteConfigured() {
		t.Fatalf("expected remote to be configured")
	}
	if cfg.DatabasePath != defaultClientDatabasePath {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
}

func TestLoadClientRejectsNegativeRetries(t *testing.T) {
	t.Setenv("NOTESYNC_USER_ID", "alice")
	t.Setenv("NOTESYNC_REMOTE_MAX_RETRIES", "-2")
	if _, err := LoadClient(NewClientViper()); err == nil {
		t.Fatalf("expected negative retries to fail")
	}
}

func TestLoadClientKeepsZeroRetries(t *testing.T) {
	t.Setenv("NOTESYNC_USER_ID", "alice")
	t.Setenv("NOTESYNC_REMOTE_MAX_RETRIES", "0")
	cfg, err := LoadClient(NewClientViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.RemoteMaxRetries != 0 {
		t.Fatalf("expected zero retries, got %d", cfg.RemoteMaxRetries)
	}
}
