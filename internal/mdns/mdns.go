// Package mdns advertises the remote server on the local network and
// discovers other hosts running it.
//
// The advertisement uses DNS-SD service type _macropinna._tcp with TXT
// records for the protocol version, a display name and the certificate
// fingerprint. Discovery only reveals presence; the operator still has to
// approve each device.
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/NeillJohnston/macropinna/internal/netaddr"
)

// ServiceType is the DNS-SD service type for macropinna hosts.
const ServiceType = "_macropinna._tcp"

// Domain is the mDNS domain services are registered in.
const Domain = "local."

// ProtocolVersion is advertised so clients can skip incompatible hosts.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the external server port to advertise.
	Port int

	// Fingerprint is the TLS certificate fingerprint shown to devices
	// before they trust the self-signed certificate.
	Fingerprint string

	// Name is the instance name. Defaults to the system hostname.
	Name string
}

// Advertiser manages the DNS-SD registration.
type Advertiser struct {
	config Config
	server *zeroconf.Server
	mu     sync.Mutex
}

// NewAdvertiser creates an advertiser. It does not register anything.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg}
}

// Start registers the service. Calling Start on a running advertiser is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	name := instanceName(a.config.Name)
	server, err := zeroconf.Register(name, ServiceType, Domain, a.config.Port,
		txtRecords(name, a.config.Fingerprint), nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	a.server = server
	return nil
}

// Stop unregisters the service. Safe to call more than once or before Start.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning reports whether the service is registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func instanceName(name string) string {
	if name != "" {
		return name
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "macropinna"
}

// txtRecords builds the TXT strings. DNS limits each to 255 bytes; a
// SHA-256 fingerprint is 95.
func txtRecords(name, fingerprint string) []string {
	records := []string{
		"version=" + ProtocolVersion,
		"name=" + name,
	}
	if fingerprint != "" {
		records = append(records, "fp="+fingerprint)
	}
	return records
}

// DiscoveredHost is one host found by Discover.
type DiscoveredHost struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Version     string `json:"version,omitempty"`
}

// URL returns the https URL a browser would open for this host.
func (h DiscoveredHost) URL() string {
	ip := net.ParseIP(h.Host)
	if ip == nil {
		return ""
	}
	return netaddr.FormatURL(ip, h.Port)
}

// hostFromEntry converts a resolved service entry, preferring IPv4.
func hostFromEntry(entry *zeroconf.ServiceEntry) DiscoveredHost {
	host := DiscoveredHost{
		Name: entry.Instance,
		Port: entry.Port,
	}

	if len(entry.AddrIPv4) > 0 {
		host.Host = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		host.Host = entry.AddrIPv6[0].String()
	}

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "fp":
			host.Fingerprint = value
		case "version":
			host.Version = value
		case "name":
			host.Name = value
		}
	}
	return host
}

// Discover browses for hosts until ctx is done and returns them sorted by
// name. Callers bound the search with a context deadline.
func Discover(ctx context.Context) ([]DiscoveredHost, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	var (
		hosts []DiscoveredHost
		wg    sync.WaitGroup
	)

	entries := make(chan *zeroconf.ServiceEntry)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			hosts = append(hosts, hostFromEntry(entry))
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-ctx.Done()
	// zeroconf closes entries once ctx is done.
	wg.Wait()

	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].Name < hosts[j].Name
	})
	return hosts, nil
}
