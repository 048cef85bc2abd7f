// Myhome talks to OpenWebNet home-automation gateways.
//
// It reads zone status, changes set points and operating modes, scans the
// installation for devices, streams monitor events to the terminal, and can
// serve an HTTP/websocket API with an optional MQTT bridge.
//
// Usage:
//
//	myhome [command] [flags]
//
// See 'myhome --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/myhome/internal/config"
	"github.com/muurk/myhome/internal/logging"
	"github.com/muurk/myhome/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// Global flags
var (
	configPath  string
	logLevel    string
	gatewayHost string
	gatewayPort int
	password    string
	askPassword bool
	logFrames   bool
	timeout     time.Duration
	format      string
)

// registry is loaded once in PersistentPreRunE.
var registry *config.Registry

var rootCmd = &cobra.Command{
	Use:   "myhome",
	Short: "OpenWebNet gateway client",
	Long: `A client for OpenWebNet home-automation gateways.

Connects to the gateway over TCP (port 20000 by default), authenticates with
the OPEN password and runs thermoregulation queries and commands.

Gateway address, zone nicknames and bridge settings are read from the
configuration file (see 'myhome config show'). The OPEN password is never
stored: pass --password, set MYHOME_PASSWORD, or use --ask-password.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			registry, err = config.LoadFrom(configPath)
		} else {
			registry, err = config.LoadRegistry()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return logging.Initialize(logLevelFor(cmd))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default $"+config.EnvConfigPath+" or the user config dir)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default $"+logging.LogLevelEnvVar)
	pf.StringVar(&gatewayHost, "host", "", "Gateway host (default from config, then "+config.DefaultGatewayHost+")")
	pf.IntVar(&gatewayPort, "port", 0, "Gateway port (default from config, then 20000)")
	pf.StringVar(&password, "password", "", "OPEN password (default $"+envPassword+", then the factory password)")
	pf.BoolVar(&askPassword, "ask-password", false, "Prompt for the OPEN password")
	pf.BoolVar(&logFrames, "log-frames", true, "Log every frame sent and received to stderr")
	pf.DurationVar(&timeout, "timeout", defaultTimeout, "Timeout for one gateway operation")

	rootCmd.AddCommand(versionCmd)
}

// annotationOwnFrames marks commands that render frames themselves; frame
// logging does not turn the console logger on for them.
const annotationOwnFrames = "myhome/own-frames"

// logLevelFor is the --log-level value, falling back to the environment and
// then to info while frames are logged.
func logLevelFor(cmd *cobra.Command) string {
	_, _, frames := gatewayParams(cmd)
	if cmd.Annotations[annotationOwnFrames] == "true" {
		frames = false
	}
	return logging.ResolveLevel(logLevel, frames)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Detailed())
	},
}
