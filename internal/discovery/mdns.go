package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type announced by MyHOME gateways
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default browse time
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is the OpenWebNet TCP port
	DefaultPort = 20000
)

// gatewayPattern matches instance or host names of known gateway models.
var gatewayPattern = regexp.MustCompile(`(?i)\b(f45[2-5]|mh20[0-2]|mhserver\d*|myhomeserver\d*|myhome)\b`)

// Scanner handles mDNS gateway discovery.
type Scanner struct {
	// Timeout is the maximum time to browse
	Timeout time.Duration

	// ServiceType overrides the browsed service type
	ServiceType string

	// Match selects gateway entries by instance or host name
	Match *regexp.Regexp
}

// NewScanner creates a new mDNS scanner with default settings.
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:     DefaultScanTimeout,
		ServiceType: ServiceType,
		Match:       gatewayPattern,
	}
}

// Locate browses for the scanner's timeout and returns every gateway seen.
func (s *Scanner) Locate(ctx context.Context) ([]*Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		gateways []*Gateway
		seen     = make(map[string]bool)
	)

	err := s.browse(ctx, func(gw *Gateway) bool {
		mu.Lock()
		defer mu.Unlock()
		if !seen[gw.Name] {
			seen[gw.Name] = true
			gateways = append(gateways, gw)
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Gateway(nil), gateways...), nil
}

// WaitForGateway returns the first gateway matching name (see
// Gateway.MatchesName), or an error when none shows up within the timeout.
func (s *Scanner) WaitForGateway(ctx context.Context, name string) (*Gateway, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	found := make(chan *Gateway, 1)

	err := s.browse(ctx, func(gw *Gateway) bool {
		if !gw.MatchesName(name) {
			return false
		}
		select {
		case found <- gw:
		default:
		}
		cancel()
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case gw := <-found:
		return gw, nil
	case <-ctx.Done():
		select {
		case gw := <-found:
			return gw, nil
		default:
		}
		return nil, fmt.Errorf("gateway %q not found within %s", name, s.Timeout)
	}
}

// browse starts the resolver and hands every gateway entry to fn until
// fn returns true or ctx ends.
func (s *Scanner) browse(ctx context.Context, fn func(*Gateway) bool) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if gw := s.parseServiceEntry(entry); gw != nil && fn(gw) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	serviceType := s.ServiceType
	if serviceType == "" {
		serviceType = ServiceType
	}
	if err := resolver.Browse(ctx, serviceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// parseServiceEntry converts a zeroconf service entry to a Gateway.
// Returns nil if the entry is not a gateway or has no address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Gateway {
	match := s.Match
	if match == nil {
		match = gatewayPattern
	}
	if !match.MatchString(entry.Instance) && !match.MatchString(entry.HostName) {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	port := DefaultPort
	if p, err := strconv.Atoi(metadata["own_port"]); err == nil && p > 0 && p < 65536 {
		port = p
	}

	name := entry.Instance
	if name == "" {
		name = strings.TrimSuffix(entry.HostName, ".")
	}

	return &Gateway{
		Name:         name,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		WebPort:      entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Locate is a convenience function to browse with a custom timeout.
func Locate(ctx context.Context, timeout time.Duration) ([]*Gateway, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.Locate(ctx)
}
