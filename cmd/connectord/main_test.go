// Package main provides tests for the connector daemon executable.
package main

import (
	"bytes"
	"net/netip"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opd-ai/socksconn/pkg/config"
)

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	applyFlagOverrides(cfg, "127.0.0.1:9050", "SOCKS4A", "debug")

	if cfg.SocksDst.String() != "127.0.0.1:9050" {
		t.Fatalf("got socks_dst %v, want 127.0.0.1:9050", cfg.SocksDst)
	}
	if cfg.Mode != config.ModeSOCKS4A {
		t.Fatalf("got mode %v, want SOCKS4A", cfg.Mode)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("got log level %q, want debug", cfg.LogLevel)
	}
}

func TestApplyFlagOverridesIgnoresBlanks(t *testing.T) {
	cfg := config.DefaultConfig()
	want := cfg.Clone()

	applyFlagOverrides(cfg, "", "", "")
	if cfg.Mode != want.Mode || cfg.LogLevel != want.LogLevel || cfg.SocksDst != want.SocksDst {
		t.Fatal("blank flag values must not overwrite defaults")
	}
}

func TestApplyFlagOverridesIgnoresUnparsableAddr(t *testing.T) {
	cfg := config.DefaultConfig()
	applyFlagOverrides(cfg, "not-an-address", "", "")
	if cfg.SocksDst.IsValid() {
		t.Fatal("an unparsable socks-dst flag must leave SocksDst untouched")
	}
}

func TestStubPeerTableReportsNotFound(t *testing.T) {
	table := newStubPeerTable(nil)
	if _, found := table.Lookup(netip.MustParseAddr("fd87:d87e:eb43::1")); found {
		t.Fatal("the stub peer table must report every lookup as not found")
	}
}

func TestVersionFlag(t *testing.T) {
	tmpDir := t.TempDir()
	binaryPath := filepath.Join(tmpDir, "connectord-test")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if err := cmd.Run(); err != nil {
		t.Skipf("skipping: could not build test binary: %v", err)
	}

	cmd = exec.Command(binaryPath, "-version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run with -version: %v", err)
	}

	if !strings.Contains(stdout.String(), "connectord version") {
		t.Errorf("version output missing version string, got: %s", stdout.String())
	}
}
