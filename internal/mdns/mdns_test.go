package mdns

import (
	"context"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestAdvertiserStopBeforeStart(t *testing.T) {
	advertiser := NewAdvertiser(Config{Port: 5174})

	if advertiser.IsRunning() {
		t.Error("advertiser should not be running before Start()")
	}

	advertiser.Stop()
	advertiser.Stop()

	if advertiser.IsRunning() {
		t.Error("advertiser should not be running after Stop()")
	}
}

func TestTXTRecords(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		want        []string
	}{
		{
			name:        "with fingerprint",
			fingerprint: "AA:BB",
			want:        []string{"version=1", "name=living-room", "fp=AA:BB"},
		},
		{
			name: "without fingerprint",
			want: []string{"version=1", "name=living-room"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := txtRecords("living-room", tt.fingerprint)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("txtRecords() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInstanceName(t *testing.T) {
	if got := instanceName("tv"); got != "tv" {
		t.Errorf("instanceName(tv) = %q, want tv", got)
	}
	if got := instanceName(""); got == "" {
		t.Error("instanceName(\"\") should fall back to the hostname")
	}
}

func TestHostFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("raw-instance", ServiceType, Domain)
	entry.Port = 5174
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	entry.Text = []string{"version=1", "name=living-room", "fp=AA:BB", "junk", "empty="}

	host := hostFromEntry(entry)

	want := DiscoveredHost{
		Name:        "living-room",
		Host:        "192.168.1.20",
		Port:        5174,
		Fingerprint: "AA:BB",
		Version:     "1",
	}
	if host != want {
		t.Errorf("hostFromEntry() = %+v, want %+v", host, want)
	}
	if got := host.URL(); got != "https://192.168.1.20:5174" {
		t.Errorf("URL() = %q, want %q", got, "https://192.168.1.20:5174")
	}
}

func TestHostFromEntry_IPv6Only(t *testing.T) {
	entry := zeroconf.NewServiceEntry("tv", ServiceType, Domain)
	entry.Port = 5174
	entry.AddrIPv6 = []net.IP{net.ParseIP("fd00::2")}

	host := hostFromEntry(entry)
	if host.Name != "tv" {
		t.Errorf("Name = %q, want instance name", host.Name)
	}
	if got := host.URL(); got != "https://[fd00::2]:5174" {
		t.Errorf("URL() = %q, want bracketed IPv6", got)
	}
}

func TestDiscoveredHostURL_NoAddress(t *testing.T) {
	if got := (DiscoveredHost{Port: 5174}).URL(); got != "" {
		t.Errorf("URL() = %q, want empty", got)
	}
}

// TestAdvertiseAndDiscover needs multicast and may find nothing in CI.
func TestAdvertiseAndDiscover(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	advertiser := NewAdvertiser(Config{
		Port:        5175,
		Fingerprint: "TEST:FP:12:34",
		Name:        "discover-test-host",
	})
	if err := advertiser.Start(); err != nil {
		t.Skipf("mdns unavailable: %v", err)
	}
	defer advertiser.Stop()

	if err := advertiser.Start(); err != nil {
		t.Fatalf("second Start() should be a no-op, got error: %v", err)
	}
	if !advertiser.IsRunning() {
		t.Error("advertiser should be running after Start()")
	}

	time.Sleep(500 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	hosts, err := Discover(ctx)
	if err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	for _, host := range hosts {
		if host.Name == "discover-test-host" {
			if host.Port != 5175 {
				t.Errorf("Port = %d, want 5175", host.Port)
			}
			if host.Fingerprint != "TEST:FP:12:34" {
				t.Errorf("Fingerprint = %q, want TEST:FP:12:34", host.Fingerprint)
			}
			return
		}
	}
	t.Log("test host not discovered (expected on networks without multicast)")
}
