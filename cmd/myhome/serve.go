package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/bridge"
	"github.com/muurk/myhome/internal/logging"
	"github.com/muurk/myhome/internal/server"
)

// Serve command flags
var (
	listenAddr   string
	noMetrics    bool
	mqttBroker   string
	mqttClientID string
	mqttUsername string
	mqttPrefix   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, the websocket event stream and the MQTT bridge",
	Long: `Keep the monitor session open and expose the gateway over HTTP:

  GET  /api/health              monitor state
  GET  /api/zones               zone readings collected from monitor events
  GET  /api/zones/{zone}        query one zone
  PUT  /api/zones/{zone}/setpoint
  PUT  /api/zones/{zone}/mode
  GET  /api/scan?filter=all
  POST /api/frames              send one raw frame
  GET  /ws                      monitor events as JSON
  GET  /metrics                 Prometheus metrics

When an MQTT broker is configured (mqtt.enabled in the config file or
--mqtt-broker), monitor events are also published to <prefix>/event and
<prefix>/zone/<zone>/<field>, and raw frames published to <prefix>/command
are sent to the gateway. The broker password is read from $` + envMQTTPassword + `.`,
	Example: `  myhome serve
  myhome serve --listen :9000 --mqtt-broker tcp://localhost:1883`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (default from config, then :8080)")
	serveCmd.Flags().BoolVar(&noMetrics, "no-metrics", false, "Disable the /metrics endpoint")
	serveCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL; enables the bridge")
	serveCmd.Flags().StringVar(&mqttClientID, "mqtt-client-id", "", "MQTT client id")
	serveCmd.Flags().StringVar(&mqttUsername, "mqtt-username", "", "MQTT username")
	serveCmd.Flags().StringVar(&mqttPrefix, "mqtt-prefix", "", "MQTT topic prefix")

	rootCmd.AddCommand(serveCmd)
}

// bridgeConfig merges the MQTT flags over the config file. ok is false when
// the bridge is disabled.
func bridgeConfig() (cfg bridge.Config, ok bool) {
	prefs := registry.MQTT
	cfg = bridge.Config{
		Broker:         prefs.Broker,
		ClientID:       prefs.ClientID,
		Username:       prefs.Username,
		Password:       os.Getenv(envMQTTPassword),
		TopicPrefix:    prefs.TopicPrefix,
		CommandTimeout: timeout,
		Logger:         logging.Named("bridge"),
	}
	enabled := prefs.Enabled
	if mqttBroker != "" {
		cfg.Broker = mqttBroker
		enabled = true
	}
	if mqttClientID != "" {
		cfg.ClientID = mqttClientID
	}
	if mqttUsername != "" {
		cfg.Username = mqttUsername
	}
	if mqttPrefix != "" {
		cfg.TopicPrefix = mqttPrefix
	}
	return cfg, enabled
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logging.Named("serve")

	client, eng, err := connect(ctx, cmd, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", gatewayAddr(cmd), err)
	}
	defer client.Close()

	if cfg, ok := bridgeConfig(); ok {
		b, err := bridge.New(cfg, eng)
		if err != nil {
			return err
		}
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("failed to start MQTT bridge: %w", err)
		}
		defer b.Stop()
		cancel := client.Subscribe(b.HandleNotification)
		defer cancel()
	}

	listen := registry.HTTP.Listen
	if listenAddr != "" {
		listen = listenAddr
	}
	srv := server.New(server.Config{
		Listen:         listen,
		Metrics:        registry.HTTP.Metrics && !noMetrics,
		RequestTimeout: timeout,
		Logger:         logging.Named("http"),
	}, eng, client)

	go func() {
		select {
		case <-client.Done():
			log.Error("Monitor connection ended; restart to reconnect", zap.Error(client.Monitor().Err()))
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", gatewayAddr(cmd), listen)
	return srv.Start(ctx)
}
