package netaddr

import (
	"net"
	"testing"
)

func ipNet(s string) *net.IPNet {
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	n.IP = ip
	return n
}

func TestURLsFor(t *testing.T) {
	ifaces := []Interface{
		{Name: "lo", Up: true, Loopback: true, Addrs: []net.Addr{ipNet("127.0.0.1/8")}},
		{Name: "wlan0", Up: true, Addrs: []net.Addr{ipNet("192.168.1.20/24"), ipNet("fe80::1/64")}},
		{Name: "eth0", Up: false, Addrs: []net.Addr{ipNet("10.0.0.5/8")}},
		{Name: "tailscale0", Up: true, Addrs: []net.Addr{ipNet("100.101.102.103/32")}},
		{Name: "docker0", Up: true, Addrs: []net.Addr{ipNet("169.254.3.4/16")}},
	}

	got := URLsFor(ifaces, 5174)
	want := []RemoteURL{
		{Name: "tailscale0", IP: "https://100.101.102.103:5174", Tailscale: true},
		{Name: "wlan0", IP: "https://192.168.1.20:5174"},
	}

	if len(got) != len(want) {
		t.Fatalf("URLsFor() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("URLsFor()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFormatURL(t *testing.T) {
	if got := FormatURL(net.ParseIP("10.1.2.3"), 5174); got != "https://10.1.2.3:5174" {
		t.Errorf("FormatURL() = %q", got)
	}
}

func TestIsTailscale(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"100.64.0.1", true},
		{"100.127.255.254", true},
		{"100.128.0.1", false},
		{"192.168.0.1", false},
		{"::1", false},
	}
	for _, tt := range tests {
		if got := IsTailscale(net.ParseIP(tt.ip)); got != tt.want {
			t.Errorf("IsTailscale(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
