// Package config provides user configuration management for myhome.
//
// This package manages a YAML-based configuration file holding the gateway
// address, zone nicknames, bridge preferences and the gateways found by
// the last discovery. The file follows OS-specific conventions for its
// location and can be moved with the MYHOME_CONFIG environment variable.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/myhome/config.yaml or $HOME/.config/myhome/config.yaml
//   - macOS: $HOME/.config/myhome/config.yaml
//   - Windows: %LOCALAPPDATA%\myhome\config.yaml
//
// # Security
//
// The gateway OPEN password and the MQTT password are NEVER stored. They
// come from a flag, an environment variable or an interactive prompt.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.SetZoneNickname("1", "Living room")
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
package config
