// Package config provides configuration file loading for the connector's
// options, in the same torrc-style "Key Value" line format the broader
// overlay-daemon tooling this connector lives inside already uses.
package config

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoadFromFile loads configuration from a torrc-compatible file, parsing it
// line by line and updating cfg in place. Lines starting with # are
// comments; empty lines are ignored. Each line is "Key Value".
func LoadFromFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validatePath(path); err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - path is validated by validatePath
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		key := parts[0]
		value := ""
		if len(parts) > 1 {
			value = strings.Join(parts[1:], " ")
		}

		if err := processConfigOption(cfg, key, value); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// processConfigOption processes a single configuration option.
func processConfigOption(cfg *Config, key, value string) error {
	switch key {
	case "socks_dst":
		addr, err := netip.ParseAddrPort(value)
		if err != nil {
			return fmt.Errorf("invalid socks_dst value %q: %w", value, err)
		}
		cfg.SocksDst = addr

	case "socks5":
		switch strings.ToUpper(value) {
		case "SOCKS4A":
			cfg.Mode = ModeSOCKS4A
		case "SOCKS5":
			cfg.Mode = ModeSOCKS5
		case "DIRECT":
			cfg.Mode = ModeDirect
		default:
			return fmt.Errorf("invalid socks5 mode: %s", value)
		}

	case "ocat_dest_port":
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid ocat_dest_port value: %s", value)
		}
		cfg.OcatDestPort = uint16(port)

	case "usrname":
		cfg.Username = value

	case "domain":
		cfg.Domain = value

	case "hosts_lookup":
		cfg.HostsLookup = parseBool(value)

	case "dns_lookup":
		cfg.DNSLookup = parseBool(value)

	case "ocat_ns_port":
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid ocat_ns_port value: %s", value)
		}
		cfg.NameserverPort = uint16(port)

	case "nameserver":
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return fmt.Errorf("invalid nameserver value %q: %w", value, err)
		}
		cfg.Nameserver = addr

	case "proxy_managed":
		cfg.ProxyManaged = parseBool(value)

	case "proxy_managed_data_dir":
		cfg.ProxyManagedDataDir = value

	case "max_retry":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid max_retry value: %s", value)
		}
		cfg.MaxRetry = n

	case "conn_timeout":
		d, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid conn_timeout: %w", err)
		}
		cfg.ConnTimeout = d

	case "dns_retry_timeout":
		d, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid dns_retry_timeout: %w", err)
		}
		cfg.DNSRetryTimeout = d

	case "dns_retry":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid dns_retry value: %s", value)
		}
		cfg.DNSRetry = n

	case "LogLevel":
		cfg.LogLevel = strings.ToLower(value)

	default:
		// Silently ignore unknown options for forward compatibility.
	}

	return nil
}

// parseDuration parses a duration string with support for common time
// units. Supports: seconds (s), minutes (m), hours (h), days (d), or a Go
// duration string ("500ms").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	suffix := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", s)
	}

	switch suffix {
	case "s", "S":
		return time.Duration(value) * time.Second, nil
	case "m", "M":
		return time.Duration(value) * time.Minute, nil
	case "h", "H":
		return time.Duration(value) * time.Hour, nil
	case "d", "D":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		val, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration format: %s", s)
		}
		return time.Duration(val) * time.Second, nil
	}
}

// parseBool parses a boolean value from various string formats. Accepts:
// 1/0, true/false, yes/no, on/off (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// validatePath validates a file path to prevent directory traversal attacks.
func validatePath(path string) error {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid path: directory traversal detected")
	}
	if !filepath.IsAbs(path) && filepath.IsAbs(cleanPath) {
		return fmt.Errorf("invalid path: attempts to escape working directory")
	}
	return nil
}
