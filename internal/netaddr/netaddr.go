// Package netaddr lists the URLs a remote device can use to reach the host.
package netaddr

import (
	"net"
	"sort"
	"strconv"
)

// RemoteURL is one way to reach the external server. IP holds a full
// https URL for display and QR codes.
type RemoteURL struct {
	Name      string `json:"name"`
	IP        string `json:"ip"`
	Tailscale bool   `json:"tailscale,omitempty"`
}

// tailscaleNet is the CGNAT range used by Tailscale (100.64.0.0/10).
var tailscaleNet = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// Interface is the subset of net.Interface data RemoteURLs needs.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    []net.Addr
}

// FormatURL returns https://ip:port.
func FormatURL(ip net.IP, port int) string {
	return "https://" + net.JoinHostPort(ip.String(), strconv.Itoa(port))
}

// IsTailscale reports whether ip is in the Tailscale range.
func IsTailscale(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && tailscaleNet.Contains(v4)
}

// RemoteURLs lists every up, non-loopback IPv4 interface of this machine.
func RemoteURLs(port int) ([]RemoteURL, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	list := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		list = append(list, Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
			Addrs:    addrs,
		})
	}
	return URLsFor(list, port), nil
}

// URLsFor builds RemoteURLs from interface data, skipping loopback, down
// interfaces and anything that is not IPv4. Results are sorted by name.
func URLsFor(ifaces []Interface, port int) []RemoteURL {
	var urls []RemoteURL
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback {
			continue
		}
		for _, addr := range iface.Addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			v4 := ip.To4()
			if v4 == nil || v4.IsLoopback() || v4.IsLinkLocalUnicast() {
				continue
			}
			urls = append(urls, RemoteURL{
				Name:      iface.Name,
				IP:        FormatURL(v4, port),
				Tailscale: IsTailscale(v4),
			})
		}
	}

	sort.SliceStable(urls, func(i, j int) bool {
		return urls[i].Name < urls[j].Name
	})
	return urls
}

// PreferredOutboundIP returns the local IPv4 address the OS routes public
// traffic through, or nil if it cannot be determined. No packets are sent.
func PreferredOutboundIP() net.IP {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return nil
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil
	}
	return addr.IP
}
