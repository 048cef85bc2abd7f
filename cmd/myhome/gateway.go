package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/logging"
	"github.com/muurk/myhome/internal/openwebnet"
)

const (
	envPassword     = "MYHOME_PASSWORD"
	envMQTTPassword = "MYHOME_MQTT_PASSWORD"
	defaultTimeout  = 10 * time.Second
)

// Output formats accepted by --format
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// gatewayParams merges flags over the config file.
func gatewayParams(cmd *cobra.Command) (host string, port int, frames bool) {
	host, port, frames = registry.Gateway.Host, registry.Gateway.Port, registry.Gateway.LogFrames
	if gatewayHost != "" {
		host = gatewayHost
	}
	if gatewayPort != 0 {
		port = gatewayPort
	}
	if cmd.Flags().Changed("log-frames") {
		frames = logFrames
	}
	return host, port, frames
}

// gatewayAddr is host:port as the commands will dial it.
func gatewayAddr(cmd *cobra.Command) string {
	host, port, _ := gatewayParams(cmd)
	return openwebnet.Params{Host: host, Port: port}.WithDefaults().Addr()
}

// readPassword resolves the OPEN password: --password, $MYHOME_PASSWORD,
// an interactive prompt with --ask-password, then the factory default.
func readPassword(in *os.File, out io.Writer) (string, error) {
	if password != "" {
		return password, nil
	}
	if env := os.Getenv(envPassword); env != "" {
		return env, nil
	}
	if !askPassword {
		return openwebnet.DefaultPassword, nil
	}

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--ask-password needs a terminal; use $%s instead", envPassword)
	}
	fmt.Fprint(out, "OPEN password: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// clientOptions builds the client options for the current flags.
func clientOptions(cmd *cobra.Command) (openwebnet.Options, error) {
	secret, err := readPassword(os.Stdin, cmd.ErrOrStderr())
	if err != nil {
		return openwebnet.Options{}, err
	}
	host, port, frames := gatewayParams(cmd)

	opts := openwebnet.Options{
		Host:      host,
		Port:      port,
		Password:  secret,
		Logger:    logging.Named("openwebnet"),
		LogFrames: frames,
	}
	if registry.Gateway.DialTimeout > 0 {
		opts.DialTimeout = time.Duration(registry.Gateway.DialTimeout) * time.Second
	}
	return opts, nil
}

// connect opens the client and the engine on top of it. The caller closes
// the client.
func connect(ctx context.Context, cmd *cobra.Command, onNotify func(openwebnet.Notification)) (*openwebnet.Client, *engine.Engine, error) {
	opts, err := clientOptions(cmd)
	if err != nil {
		return nil, nil, err
	}
	opts.OnNotify = onNotify

	client, err := openwebnet.NewClient(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return client, engine.New(client, logging.Named("engine")), nil
}

// operation returns the context bounding one gateway exchange.
func operation(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// printStructured writes v as JSON or YAML. It reports false for the
// table format so the caller renders its own output.
func printStructured(w io.Writer, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	case "", formatTable:
		return false, nil
	default:
		return true, fmt.Errorf("unknown format %q (use table, json or yaml)", format)
	}
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format (table, json, yaml)")
}
