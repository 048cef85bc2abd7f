package config

import (
	"net"
	"strconv"
	"time"
)

const (
	// DefaultGatewayHost matches the factory address of the gateway.
	DefaultGatewayHost = "192.168.0.35"

	// DefaultGatewayPort is the OpenWebNet TCP port.
	DefaultGatewayPort = 20000

	// DefaultHTTPListen is the address of the serve command.
	DefaultHTTPListen = ":8080"

	// DefaultTopicPrefix is the root of every MQTT topic.
	DefaultTopicPrefix = "myhome"

	// DefaultDiscoverTimeout is the mDNS browse time in seconds.
	DefaultDiscoverTimeout = 5
)

// Registry represents the entire user configuration file.
type Registry struct {
	Version  int                           `yaml:"version"`
	Gateway  *Gateway                      `yaml:"gateway"`
	Zones    map[string]*Zone              `yaml:"zones,omitempty"` // Keyed by zone number
	HTTP     *HTTPPrefs                    `yaml:"http,omitempty"`
	MQTT     *MQTTPrefs                    `yaml:"mqtt,omitempty"`
	Discover *DiscoverPrefs                `yaml:"discover,omitempty"`
	Found    map[string]*DiscoveredGateway `yaml:"discovered,omitempty"` // Keyed by mDNS instance name

	path string
}

// Gateway holds the connection settings of the OpenWebNet gateway.
// The OPEN password is never stored.
type Gateway struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	LogFrames   bool   `yaml:"log_frames"`
	DialTimeout int    `yaml:"dial_timeout,omitempty"` // Seconds, 0 = library default
}

// Zone is user metadata for one thermoregulation zone.
type Zone struct {
	Nickname string `yaml:"nickname,omitempty"`
	Room     string `yaml:"room,omitempty"`
}

// HTTPPrefs configure the serve command.
type HTTPPrefs struct {
	Listen  string `yaml:"listen"`
	Metrics bool   `yaml:"metrics"`
}

// MQTTPrefs configure the MQTT bridge. The broker password is read from
// MYHOME_MQTT_PASSWORD and never stored.
type MQTTPrefs struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker,omitempty"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// DiscoverPrefs configure mDNS gateway discovery.
type DiscoverPrefs struct {
	Timeout int `yaml:"timeout"` // Seconds
}

// DiscoveredGateway is a gateway seen by the last locate run.
type DiscoveredGateway struct {
	Host     string    `yaml:"host"`
	Port     int       `yaml:"port"`
	LastSeen time.Time `yaml:"last_seen"`
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	r := &Registry{Version: 1}
	r.fillDefaults()
	return r
}

// fillDefaults initializes every nil section.
func (r *Registry) fillDefaults() {
	if r.Gateway == nil {
		r.Gateway = &Gateway{
			Host:      DefaultGatewayHost,
			Port:      DefaultGatewayPort,
			LogFrames: true,
		}
	}
	if r.Gateway.Port == 0 {
		r.Gateway.Port = DefaultGatewayPort
	}
	if r.Zones == nil {
		r.Zones = make(map[string]*Zone)
	}
	if r.HTTP == nil {
		r.HTTP = &HTTPPrefs{Listen: DefaultHTTPListen, Metrics: true}
	}
	if r.MQTT == nil {
		r.MQTT = &MQTTPrefs{TopicPrefix: DefaultTopicPrefix}
	}
	if r.MQTT.TopicPrefix == "" {
		r.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if r.Discover == nil {
		r.Discover = &DiscoverPrefs{Timeout: DefaultDiscoverTimeout}
	}
	if r.Found == nil {
		r.Found = make(map[string]*DiscoveredGateway)
	}
}

// Path returns the file the registry was loaded from, or "" for a
// registry that has not been loaded or saved yet.
func (r *Registry) Path() string {
	return r.path
}

// GetZone retrieves zone metadata. Returns nil if the zone is unknown.
func (r *Registry) GetZone(zone string) *Zone {
	return r.Zones[zone]
}

// EnsureZone returns the entry for zone, creating it if needed.
func (r *Registry) EnsureZone(zone string) *Zone {
	if r.Zones == nil {
		r.Zones = make(map[string]*Zone)
	}
	if z, ok := r.Zones[zone]; ok {
		return z
	}
	z := &Zone{}
	r.Zones[zone] = z
	return z
}

// SetZoneNickname sets a user-friendly name for a zone.
func (r *Registry) SetZoneNickname(zone, nickname string) {
	r.EnsureZone(zone).Nickname = nickname
}

// ZoneName returns the nickname of zone, or "zone <n>" when it has none.
func (r *Registry) ZoneName(zone string) string {
	if z := r.Zones[zone]; z != nil && z.Nickname != "" {
		return z.Nickname
	}
	return "zone " + zone
}

// RecordGateway stores a discovered gateway under its instance name.
func (r *Registry) RecordGateway(name, host string, port int) {
	if r.Found == nil {
		r.Found = make(map[string]*DiscoveredGateway)
	}
	r.Found[name] = &DiscoveredGateway{
		Host:     host,
		Port:     port,
		LastSeen: time.Now(),
	}
}

// UseGateway makes host:port the configured gateway.
func (r *Registry) UseGateway(host string, port int) {
	if r.Gateway == nil {
		r.fillDefaults()
	}
	r.Gateway.Host = host
	if port != 0 {
		r.Gateway.Port = port
	}
}

// GatewayAddr returns host:port of the configured gateway.
func (r *Registry) GatewayAddr() string {
	return net.JoinHostPort(r.Gateway.Host, strconv.Itoa(r.Gateway.Port))
}
