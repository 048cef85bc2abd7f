// Package discovery locates OpenWebNet gateways on the local network via
// mDNS (zeroconf).
//
// Gateways of the MyHOME family announce their web interface as an
// "_http._tcp" service. The scanner browses that service type and keeps
// the entries whose instance or host name looks like a gateway
// (F454, F455, MH200, MH201, MH202, MHServer, MyHOMEServer). The
// OpenWebNet port is not announced, so every result carries the
// standard port 20000 unless a TXT record "own_port" says otherwise.
//
// # Usage
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 5 * time.Second
//	gateways, err := scanner.Locate(ctx)
//	for _, gw := range gateways {
//	    fmt.Println(gw.Addr())
//	}
package discovery
