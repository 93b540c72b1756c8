package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NeillJohnston/macropinna/internal/bus"
	"github.com/NeillJohnston/macropinna/internal/device"
	"github.com/NeillJohnston/macropinna/internal/ipc"
	"github.com/NeillJohnston/macropinna/internal/netaddr"
	"github.com/NeillJohnston/macropinna/internal/server"
)

// setConfigHome isolates config lookups from the real user config.
func setConfigHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
}

// startControlSocket serves a control handler on a temp socket.
func startControlSocket(t *testing.T) (*device.Registry, string) {
	t.Helper()
	setConfigHome(t)

	baseDir, err := os.MkdirTemp("/tmp", "macropinna-cmd-")
	if err != nil {
		t.Fatalf("MkdirTemp() error: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(baseDir) })
	path := filepath.Join(baseDir, "control.sock")

	b := bus.New()
	registry := device.NewRegistry(device.RegistryConfig{Publisher: b})
	handler := server.NewControlHandler(server.ControlConfig{
		Registry: registry,
		Bus:      b,
		URLs: func() ([]netaddr.RemoteURL, error) {
			return []netaddr.RemoteURL{{Name: "wlan0", IP: "https://10.0.0.5:5174"}}, nil
		},
	})

	sock := ipc.NewControlSocketServer(path, handler, nil)
	if err := sock.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { sock.Stop(context.Background()) })
	return registry, path
}

func addPendingDevice(t *testing.T, r *device.Registry, name string) uuid.UUID {
	t.Helper()
	id := device.Identity{UUID: uuid.New(), Name: name, Agent: device.AgentIPhone, Code: "11223344"}
	r.AddInitiated(id)
	if _, ok := r.PromoteToPending(id.UUID); !ok {
		t.Fatal("PromoteToPending() = false")
	}
	return id.UUID
}

func TestPendingCommand(t *testing.T) {
	registry, path := startControlSocket(t)
	id := addPendingDevice(t, registry, "Kitchen iPad")

	var stdout, stderr bytes.Buffer
	code := run([]string{"macropinna-remote", "pending", "--socket", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{id.String(), "Kitchen iPad", "IPhone", "1122 3344"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPendingCommand_JSON(t *testing.T) {
	registry, path := startControlSocket(t)
	addPendingDevice(t, registry, "tv")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"macropinna-remote", "pending", "--socket", path, "--json"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}

	var list []device.PendingInfo
	if err := json.Unmarshal(stdout.Bytes(), &list); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(list) != 1 || list[0].Name != "tv" {
		t.Errorf("list = %+v, want one device named tv", list)
	}
}

func TestActiveCommand_Empty(t *testing.T) {
	_, path := startControlSocket(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"macropinna-remote", "active", "--socket", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "No devices connected.") {
		t.Errorf("stdout = %q, want empty message", stdout.String())
	}
}

func TestApproveCommand(t *testing.T) {
	registry, path := startControlSocket(t)
	id := addPendingDevice(t, registry, "phone")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"macropinna-remote", "approve", "--socket", path, id.String()}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "approved") {
		t.Errorf("stdout = %q, want approval message", stdout.String())
	}
	if got := registry.State(id); got != device.StateApproved {
		t.Errorf("state = %v, want approved", got)
	}

	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"macropinna-remote", "approve", "--socket", path, id.String()}, &stdout, &stderr); code != 1 {
		t.Errorf("second approve exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "not waiting for approval") {
		t.Errorf("stderr = %q, want not-pending message", stderr.String())
	}
}

func TestRejectCommand(t *testing.T) {
	registry, path := startControlSocket(t)
	id := addPendingDevice(t, registry, "phone")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"macropinna-remote", "reject", "--socket", path, id.String()}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if got := registry.State(id); got != device.StateNone {
		t.Errorf("state = %v, want none", got)
	}
}

func TestDecisionCommand_BadArgs(t *testing.T) {
	setConfigHome(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing uuid", []string{"macropinna-remote", "approve"}},
		{"malformed uuid", []string{"macropinna-remote", "reject", "1234"}},
		{"extra args", []string{"macropinna-remote", "approve", uuid.NewString(), "more"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
		})
	}
}

func TestURLsCommand(t *testing.T) {
	_, path := startControlSocket(t)

	var stdout, stderr bytes.Buffer
	if code := run([]string{"macropinna-remote", "urls", "--socket", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "https://10.0.0.5:5174") {
		t.Errorf("stdout = %q, want server URL", stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"macropinna-remote", "urls", "--socket", path, "--qr"}, &stdout, &stderr); code != 0 {
		t.Fatalf("--qr exit code = %d, stderr = %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "SCAN TO CONNECT (wlan0)") {
		t.Errorf("stdout = %q, want QR header", stdout.String())
	}
}

func TestPendingCommand_ServerDown(t *testing.T) {
	setConfigHome(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"macropinna-remote", "pending", "--addr", "127.0.0.1:1"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "is 'serve' running?") {
		t.Errorf("stderr = %q, want hint about serve", stderr.String())
	}
}

func TestDescribeEvent(t *testing.T) {
	id := uuid.New()
	connected, _ := json.Marshal(device.Event{
		Kind:     device.EventConnected,
		Identity: &device.Identity{UUID: id, Name: "phone", Agent: device.AgentAndroid},
	})

	tests := []struct {
		in   string
		want string
	}{
		{`"RefreshPending"`, "pending devices changed"},
		{`"RefreshActive"`, "active devices changed"},
		{string(connected), `device "phone" (Android) connected as ` + id.String()},
		{`{"Other":1}`, `{"Other":1}`},
	}
	for _, tt := range tests {
		if got := describeEvent([]byte(tt.in)); got != tt.want {
			t.Errorf("describeEvent(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{now.Add(time.Minute), "in the future"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-2 * time.Hour), "2h ago"},
		{now.Add(-72 * time.Hour), "3d ago"},
	}
	for _, tt := range tests {
		if got := formatAgo(now, tt.t); got != tt.want {
			t.Errorf("formatAgo(%v) = %q, want %q", tt.t, got, tt.want)
		}
	}
}
