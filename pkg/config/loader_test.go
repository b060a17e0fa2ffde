package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.conf")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	body := `
# sample connector config
socks_dst 127.0.0.1:9050
socks5 SOCKS5
ocat_dest_port 80
usrname anon
domain b32.i2p
hosts_lookup yes
dns_lookup no
max_retry 5
conn_timeout 15s
`
	path := writeTempConfig(t, body)

	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if !cfg.Enabled() {
		t.Fatal("expected connector to be enabled after loading socks_dst")
	}
	if cfg.Mode != ModeSOCKS5 {
		t.Fatalf("got mode %s, want SOCKS5", cfg.Mode)
	}
	if cfg.Username != "anon" {
		t.Fatalf("got username %q, want anon", cfg.Username)
	}
	if cfg.MaxRetry != 5 {
		t.Fatalf("got max_retry %d, want 5", cfg.MaxRetry)
	}
	if cfg.ConnTimeout.Seconds() != 15 {
		t.Fatalf("got conn_timeout %v, want 15s", cfg.ConnTimeout)
	}
}

func TestLoadFromFileParsesProxyManaged(t *testing.T) {
	path := writeTempConfig(t, "proxy_managed yes\nproxy_managed_data_dir /var/lib/connectord/tor\n")
	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if !cfg.ProxyManaged {
		t.Fatal("expected proxy_managed to parse as true")
	}
	if cfg.ProxyManagedDataDir != "/var/lib/connectord/tor" {
		t.Fatalf("got proxy_managed_data_dir %q, want /var/lib/connectord/tor", cfg.ProxyManagedDataDir)
	}
}

func TestLoadFromFileRejectsInvalidMode(t *testing.T) {
	path := writeTempConfig(t, "socks5 BOGUS\n")
	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err == nil {
		t.Fatal("expected error loading invalid socks5 mode")
	}
}

func TestLoadFromFileIgnoresUnknownKeys(t *testing.T) {
	path := writeTempConfig(t, "totally_unknown_option value\nsocks_dst 127.0.0.1:1080\nsocks5 SOCKS4A\n")
	cfg := DefaultConfig()
	if err := LoadFromFile(path, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFromFileRejectsTraversal(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadFromFile("../../etc/passwd", cfg); err == nil {
		t.Fatal("expected path validation to reject traversal")
	}
}
