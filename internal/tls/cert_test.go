package tls

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGenerateCertificate(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "cert.pem")
	keyPath := filepath.Join(tmpDir, "key.pem")

	info, err := GenerateCertificate(CertConfig{
		CertPath:      certPath,
		KeyPath:       keyPath,
		Hosts:         []string{"localhost", "127.0.0.1", "tv.local"},
		ValidDuration: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	if !info.IsGenerated {
		t.Error("IsGenerated should be true")
	}
	if got := info.NotAfter.Sub(info.NotBefore); got < 23*time.Hour || got > 25*time.Hour {
		t.Errorf("validity = %v, want about 24h", got)
	}

	keyStat, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if keyStat.Mode().Perm() != 0600 {
		t.Errorf("key permissions = %o, want 0600", keyStat.Mode().Perm())
	}

	pemData, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("failed to read cert: %v", err)
	}
	block, _ := pem.Decode(pemData)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatal("cert file does not hold a CERTIFICATE block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("failed to parse cert: %v", err)
	}
	if err := cert.VerifyHostname("localhost"); err != nil {
		t.Errorf("cert not valid for localhost: %v", err)
	}
	if err := cert.VerifyHostname("tv.local"); err != nil {
		t.Errorf("cert not valid for tv.local: %v", err)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v, want [127.0.0.1]", cert.IPAddresses)
	}
	if info.Fingerprint != ComputeFingerprint(cert) {
		t.Errorf("Fingerprint mismatch: %s", info.Fingerprint)
	}
}

func TestGenerateCertificateDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	info, err := GenerateCertificate(CertConfig{
		CertPath: filepath.Join(tmpDir, "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "key.pem"),
		TimeNow:  func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	if !info.NotBefore.Equal(fixed) {
		t.Errorf("NotBefore = %v, want %v", info.NotBefore, fixed)
	}
	if want := fixed.Add(365 * 24 * time.Hour); !info.NotAfter.Equal(want) {
		t.Errorf("NotAfter = %v, want %v", info.NotAfter, want)
	}
}

func TestEnsureCertificateMissingPaths(t *testing.T) {
	_, err := EnsureCertificate(CertConfig{CertPath: "cert.pem"})
	if !errors.Is(err, ErrMissingPath) {
		t.Errorf("err = %v, want ErrMissingPath", err)
	}
}

func TestEnsureCertificateGenerates(t *testing.T) {
	tmpDir := t.TempDir()
	info, err := EnsureCertificate(CertConfig{
		CertPath: filepath.Join(tmpDir, "nested", "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "nested", "key.pem"),
	})
	if err != nil {
		t.Fatalf("EnsureCertificate failed: %v", err)
	}
	if !info.IsGenerated {
		t.Error("expected a generated certificate")
	}
}

func TestEnsureCertificateLoadsWithoutModifying(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := CertConfig{
		CertPath: filepath.Join(tmpDir, "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "key.pem"),
	}

	first, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("first EnsureCertificate failed: %v", err)
	}
	before, _ := os.ReadFile(cfg.CertPath)

	second, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("second EnsureCertificate failed: %v", err)
	}
	after, _ := os.ReadFile(cfg.CertPath)

	if second.IsGenerated {
		t.Error("second call should load, not generate")
	}
	if second.Fingerprint != first.Fingerprint {
		t.Errorf("fingerprint changed: %s != %s", second.Fingerprint, first.Fingerprint)
	}
	if !bytes.Equal(before, after) {
		t.Error("existing certificate file was modified")
	}
}

func TestEnsureCertificateGeneratesIfOnlyOneMissing(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := CertConfig{
		CertPath: filepath.Join(tmpDir, "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "key.pem"),
	}
	first, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("EnsureCertificate failed: %v", err)
	}
	if err := os.Remove(cfg.KeyPath); err != nil {
		t.Fatalf("failed to remove key: %v", err)
	}

	second, err := EnsureCertificate(cfg)
	if err != nil {
		t.Fatalf("EnsureCertificate failed: %v", err)
	}
	if !second.IsGenerated {
		t.Error("expected regeneration when the key is missing")
	}
	if second.Fingerprint == first.Fingerprint {
		t.Error("regenerated certificate should have a new fingerprint")
	}
}

func TestEnsureCertificateCorruptPairFails(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := CertConfig{
		CertPath: filepath.Join(tmpDir, "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "key.pem"),
	}
	os.WriteFile(cfg.CertPath, []byte("not a cert"), 0644)
	os.WriteFile(cfg.KeyPath, []byte("not a key"), 0600)

	if _, err := EnsureCertificate(cfg); err == nil {
		t.Fatal("expected an error for a corrupt pair")
	}
}

func TestGenerateCertificateTruncatesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := CertConfig{
		CertPath: filepath.Join(tmpDir, "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "key.pem"),
	}
	junk := bytes.Repeat([]byte("x"), 64*1024)
	os.WriteFile(cfg.CertPath, junk, 0644)
	os.WriteFile(cfg.KeyPath, junk, 0600)

	if _, err := GenerateCertificate(cfg); err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath); err != nil {
		t.Errorf("rewritten pair does not load: %v", err)
	}
	data, _ := os.ReadFile(cfg.KeyPath)
	if bytes.Contains(data, []byte("xxx")) {
		t.Error("key file still contains stale bytes")
	}
}

func TestComputeFingerprintFormat(t *testing.T) {
	tmpDir := t.TempDir()
	info, err := GenerateCertificate(CertConfig{
		CertPath: filepath.Join(tmpDir, "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "key.pem"),
	})
	if err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	parts := strings.Split(info.Fingerprint, ":")
	if len(parts) != 32 {
		t.Fatalf("fingerprint has %d parts, want 32", len(parts))
	}
	for _, p := range parts {
		if len(p) != 2 || strings.ToUpper(p) != p {
			t.Errorf("bad fingerprint byte %q", p)
		}
	}
}

func TestLoadTLSConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := CertConfig{
		CertPath: filepath.Join(tmpDir, "cert.pem"),
		KeyPath:  filepath.Join(tmpDir, "key.pem"),
	}
	if _, err := GenerateCertificate(cfg); err != nil {
		t.Fatalf("GenerateCertificate failed: %v", err)
	}

	tlsConfig, err := LoadTLSConfig(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		t.Fatalf("LoadTLSConfig failed: %v", err)
	}
	if len(tlsConfig.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(tlsConfig.Certificates))
	}
	if tlsConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", tlsConfig.MinVersion)
	}
}

func TestLoadTLSConfigInvalidPath(t *testing.T) {
	if _, err := LoadTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Error("expected error for missing files")
	}
}
