package main

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/NeillJohnston/macropinna/internal/input"
	"github.com/NeillJohnston/macropinna/internal/netaddr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestResolveServeConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "port = 6000\ninternal_port = 6001\ninput_backend = \"uinput\"\n")

	var stderr bytes.Buffer
	cfg, sc, err := resolveServeConfig([]string{"--config", path, "--port", "7000", "--input", "log"}, &stderr)
	if err != nil {
		t.Fatalf("resolveServeConfig() error: %v", err)
	}

	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want flag value 7000", cfg.Port)
	}
	if cfg.InternalPort != 6001 {
		t.Errorf("InternalPort = %d, want file value 6001", cfg.InternalPort)
	}
	if cfg.InputBackend != "log" {
		t.Errorf("InputBackend = %q, want flag value log", cfg.InputBackend)
	}
	if sc.NoTLS {
		t.Error("NoTLS should default to false")
	}
	if want := filepath.Join(filepath.Dir(path), "cert.pem"); cfg.TLSCert != want {
		t.Errorf("TLSCert = %q, want %q next to the config file", cfg.TLSCert, want)
	}
}

func TestResolveServeConfig_ExplicitZeroFlagWins(t *testing.T) {
	path := writeConfig(t, "mdns_enabled = true\n")

	cfg, _, err := resolveServeConfig([]string{"--config", path, "--mdns=false"}, io.Discard)
	if err != nil {
		t.Fatalf("resolveServeConfig() error: %v", err)
	}
	if cfg.MdnsEnabled {
		t.Error("MdnsEnabled = true, want explicit --mdns=false to win")
	}
}

func TestResolveServeConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "port = 6000\n")

	if _, _, err := resolveServeConfig([]string{"--config", path, "--internal-port", "6000"}, io.Discard); err == nil {
		t.Error("resolveServeConfig() should reject equal ports")
	}
	if _, _, err := resolveServeConfig([]string{"--config", path, "--input", "xdotool"}, io.Discard); err == nil {
		t.Error("resolveServeConfig() should reject an unknown backend")
	}
}

func TestResolveServeConfig_InitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "remote.toml")

	cfg, _, err := resolveServeConfig([]string{"--config", path, "--init-config"}, io.Discard)
	if err != nil {
		t.Fatalf("resolveServeConfig() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not written: %v", err)
	}
	if cfg.Port != 5174 {
		t.Errorf("Port = %d, want 5174", cfg.Port)
	}
}

func TestOpenInjector_Log(t *testing.T) {
	inj, err := openInjector("log", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("openInjector() error: %v", err)
	}
	if _, ok := inj.(*input.LogInjector); !ok {
		t.Errorf("openInjector(log) = %T, want *input.LogInjector", inj)
	}
}

func TestCertificateHosts(t *testing.T) {
	hosts := certificateHosts([]netaddr.RemoteURL{
		{Name: "eth0", IP: "https://192.168.1.20:5174"},
	})

	want := map[string]bool{"localhost": false, "127.0.0.1": false, "192.168.1.20": false}
	for _, h := range hosts {
		if _, ok := want[h]; ok {
			want[h] = true
		}
	}
	for h, found := range want {
		if !found {
			t.Errorf("certificateHosts() = %v, missing %q", hosts, h)
		}
	}
}
