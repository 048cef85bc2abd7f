package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Gateway represents a discovered OpenWebNet gateway.
type Gateway struct {
	// Name is the mDNS instance name (e.g., "F454 - 00:03:50:aa:bb:cc")
	Name string

	// Hostname is the mDNS hostname (e.g., "f454.local.")
	Hostname string

	// IP is the announced address, IPv4 preferred
	IP string

	// Port is the OpenWebNet TCP port
	Port int

	// WebPort is the port of the announced HTTP service
	WebPort int

	// Metadata contains the mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the gateway was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the gateway.
func (g *Gateway) String() string {
	return fmt.Sprintf("%s (%s) at %s", g.Name, g.Hostname, g.Addr())
}

// Addr returns the OpenWebNet address host:port.
func (g *Gateway) Addr() string {
	return net.JoinHostPort(g.IP, strconv.Itoa(g.Port))
}

// MatchesName reports whether name appears in the instance name or the
// hostname, ignoring case.
func (g *Gateway) MatchesName(name string) bool {
	want := strings.ToLower(name)
	return strings.Contains(strings.ToLower(g.Name), want) ||
		strings.Contains(strings.ToLower(g.Hostname), want)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (g *Gateway) GetMetadata(key string) string {
	if g.Metadata == nil {
		return ""
	}
	return g.Metadata[key]
}
