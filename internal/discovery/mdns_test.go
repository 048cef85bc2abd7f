package discovery

import (
	"net"
	"regexp"
	"testing"

	"github.com/grandcat/zeroconf"
)

func entry(instance, host string, port int, ips []net.IP, text ...string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance, Service: ServiceType, Domain: ServiceDomain},
		HostName:      host,
		Port:          port,
		AddrIPv4:      ips,
		Text:          text,
	}
}

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantName string
		wantIP   string
		wantPort int
	}{
		{
			name:     "F454 by instance name",
			entry:    entry("F454 - 00:03:50:aa:bb:cc", "gw.local.", 80, []net.IP{net.ParseIP("192.168.0.35")}),
			wantName: "F454 - 00:03:50:aa:bb:cc",
			wantIP:   "192.168.0.35",
			wantPort: DefaultPort,
		},
		{
			name:     "MH202 by host name",
			entry:    entry("", "mh202.local.", 80, []net.IP{net.ParseIP("10.0.0.5")}),
			wantName: "mh202.local",
			wantIP:   "10.0.0.5",
			wantPort: DefaultPort,
		},
		{
			name:     "OpenWebNet port from TXT",
			entry:    entry("MyHOMEServer1", "srv.local.", 80, []net.IP{net.ParseIP("10.0.0.6")}, "own_port=20001"),
			wantName: "MyHOMEServer1",
			wantIP:   "10.0.0.6",
			wantPort: 20001,
		},
		{
			name:     "bad TXT port falls back",
			entry:    entry("F455", "f455.local.", 80, []net.IP{net.ParseIP("10.0.0.7")}, "own_port=abc"),
			wantName: "F455",
			wantIP:   "10.0.0.7",
			wantPort: DefaultPort,
		},
		{
			name:    "printer",
			entry:   entry("Office Printer", "printer.local.", 80, []net.IP{net.ParseIP("10.0.0.8")}),
			wantNil: true,
		},
		{
			name:    "gateway without address",
			entry:   entry("F454", "f454.local.", 80, nil),
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := scanner.parseServiceEntry(tt.entry)
			if tt.wantNil {
				if gw != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", gw)
				}
				return
			}
			if gw == nil {
				t.Fatal("parseServiceEntry() = nil")
			}
			if gw.Name != tt.wantName {
				t.Errorf("Name = %v, want %v", gw.Name, tt.wantName)
			}
			if gw.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", gw.IP, tt.wantIP)
			}
			if gw.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", gw.Port, tt.wantPort)
			}
			if gw.WebPort != tt.entry.Port {
				t.Errorf("WebPort = %v, want %v", gw.WebPort, tt.entry.Port)
			}
		})
	}
}

func TestScanner_parseServiceEntry_IPv6(t *testing.T) {
	e := entry("F454", "f454.local.", 80, nil)
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

	gw := NewScanner().parseServiceEntry(e)
	if gw == nil || gw.IP != "fe80::1" {
		t.Fatalf("parseServiceEntry() = %v", gw)
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	gw := NewScanner().parseServiceEntry(entry("F454", "f454.local.", 80,
		[]net.IP{net.ParseIP("10.0.0.1")}, "path=/", "flag"))
	if gw == nil {
		t.Fatal("parseServiceEntry() = nil")
	}
	if gw.GetMetadata("path") != "/" {
		t.Errorf("path = %q", gw.GetMetadata("path"))
	}
	if _, ok := gw.Metadata["flag"]; !ok {
		t.Error("key without value should be kept")
	}
}

func TestScanner_CustomMatch(t *testing.T) {
	scanner := NewScanner()
	scanner.Match = regexp.MustCompile(`^home-gw$`)

	if scanner.parseServiceEntry(entry("home-gw", "x.local.", 80, []net.IP{net.ParseIP("10.0.0.1")})) == nil {
		t.Error("custom match not applied")
	}
	if scanner.parseServiceEntry(entry("F454", "f454.local.", 80, []net.IP{net.ParseIP("10.0.0.1")})) != nil {
		t.Error("default pattern still applied")
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
	if scanner.ServiceType != ServiceType {
		t.Errorf("ServiceType = %v", scanner.ServiceType)
	}
}

func TestGatewayPattern(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"F454", true},
		{"f454.local.", true},
		{"MH200N", false},
		{"MH202", true},
		{"MHServer2", true},
		{"MyHOMEServer1", true},
		{"myhome.local.", true},
		{"F4540", false},
		{"printer", false},
	}
	for _, tt := range tests {
		if got := gatewayPattern.MatchString(tt.name); got != tt.want {
			t.Errorf("gatewayPattern.MatchString(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
