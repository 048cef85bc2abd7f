// Package bridge mirrors a gateway onto an MQTT broker.
//
// Topics, below the configured prefix:
//
//	<prefix>/status                      "online" / "offline" (retained, last will)
//	<prefix>/event                       every monitor frame
//	<prefix>/zone/<zone>/<field>         decoded zone values (retained)
//	<prefix>/command                     raw frame to send (subscribed)
//	<prefix>/result                      JSON result of a raw command
//	<prefix>/zone/<zone>/setpoint/set    set point in Celsius (subscribed)
//	<prefix>/zone/<zone>/mode/set        off | antifreeze | auto (subscribed)
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/metrics"
	"github.com/muurk/myhome/internal/openwebnet"
)

const (
	// DefaultCommandTimeout bounds one gateway command issued over MQTT
	DefaultCommandTimeout = 10 * time.Second

	// QueueSize is the number of monitor publishes buffered for the broker
	QueueSize = 256

	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// newClient is replaced in tests.
var newClient = mqtt.NewClient

// Commander runs gateway commands. *engine.Engine implements it.
type Commander interface {
	Raw(ctx context.Context, frame string) ([]string, engine.Result, error)
	SetTemperature(ctx context.Context, zone string, celsius float64) error
	SetMode(ctx context.Context, zone, mode string) error
}

// Config holds the broker settings.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	CommandTimeout time.Duration
	Logger         *zap.Logger
}

// Result is published on <prefix>/result for every raw command.
type Result struct {
	Command string   `json:"command"`
	Result  string   `json:"result"`
	Frames  []string `json:"frames,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type outbound struct {
	topic    string
	retained bool
	payload  any
}

// Bridge connects monitor notifications and MQTT commands.
type Bridge struct {
	cfg    Config
	cmd    Commander
	log    *zap.Logger
	client mqtt.Client

	mu    sync.Mutex
	zones engine.ZoneStatus

	queue    chan outbound
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Uint64
}

// New prepares a bridge. Nothing is sent until Start.
func New(cfg Config, cmd Commander) (*Bridge, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "myhome"
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.ClientID == "" {
		cfg.ClientID = "myhome-" + strconv.FormatInt(time.Now().Unix(), 36)
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	paho := zap.NewStdLog(cfg.Logger.Named("paho"))
	mqtt.ERROR = paho
	mqtt.CRITICAL = paho

	b := &Bridge{
		cfg:   cfg,
		cmd:   cmd,
		log:   cfg.Logger,
		zones: make(engine.ZoneStatus),
		queue: make(chan outbound, QueueSize),
		quit:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetWill(b.topic("status"), "offline", 1, true).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)

	b.client = newClient(opts)
	return b, nil
}

func (b *Bridge) topic(parts ...string) string {
	return b.cfg.TopicPrefix + "/" + strings.Join(parts, "/")
}

// Start connects to the broker and starts the publisher goroutine.
// Subscriptions are (re)made on every connect.
func (b *Bridge) Start(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, err)
	}

	b.wg.Add(1)
	go b.drain()
	return nil
}

// Stop ends the publisher, publishes the offline status and disconnects.
// Queued monitor publishes are discarded.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.quit) })
	b.wg.Wait()

	b.publish(b.topic("status"), true, "offline")
	b.client.Disconnect(250)
}

// Dropped returns the number of monitor publishes lost to a full queue.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bridge) drain() {
	defer b.wg.Done()
	for {
		select {
		case <-b.quit:
			return
		case m := <-b.queue:
			b.publish(m.topic, m.retained, m.payload)
		}
	}
}

// enqueue never blocks; when the broker falls behind the publish is
// dropped and counted.
func (b *Bridge) enqueue(topic string, retained bool, payload any) {
	select {
	case b.queue <- outbound{topic, retained, payload}:
	default:
		n := b.dropped.Add(1)
		metrics.BridgeDropped.Inc()
		if n == 1 || n%100 == 0 {
			b.log.Warn("MQTT queue full, dropping monitor events", zap.String("topic", topic), zap.Uint64("dropped", n))
		}
	}
}

func (b *Bridge) onConnect(c mqtt.Client) {
	b.log.Info("MQTT connected", zap.String("broker", b.cfg.Broker))

	b.subscribe(c, b.topic("command"), b.handleCommand)
	b.subscribe(c, b.topic("zone", "+", "setpoint", "set"), b.handleSetPoint)
	b.subscribe(c, b.topic("zone", "+", "mode", "set"), b.handleSetMode)
	b.publish(b.topic("status"), true, "online")
}

func (b *Bridge) subscribe(c mqtt.Client, topic string, handler mqtt.MessageHandler) {
	token := c.Subscribe(topic, b.cfg.QoS, handler)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.log.Warn("MQTT subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
	}
}

func (b *Bridge) onConnectionLost(_ mqtt.Client, err error) {
	b.log.Warn("MQTT connection lost", zap.Error(err))
}

func (b *Bridge) publish(topic string, retained bool, payload any) {
	token := b.client.Publish(topic, b.cfg.QoS, retained, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.log.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(token.Error()))
	}
}

// HandleNotification forwards one monitor notification. It is meant to be
// passed to openwebnet.Client.Subscribe and does not wait for the broker.
func (b *Bridge) HandleNotification(n openwebnet.Notification) {
	if n.Kind != openwebnet.NotifyEvent {
		return
	}
	b.enqueue(b.topic("event"), false, n.Frame)

	b.mu.Lock()
	r, ok := b.zones.Apply(n.Frame)
	b.mu.Unlock()
	if ok {
		b.enqueue(b.topic("zone", r.Zone, r.Field.String()), true, r.Value)
	}
}

func (b *Bridge) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.cfg.CommandTimeout)
}

func (b *Bridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	frame := strings.TrimSpace(string(msg.Payload()))
	b.log.Debug("MQTT command", zap.String("frame", frame))

	res := Result{Command: frame}
	if frames, rest := openwebnet.SplitFrames(frame); len(frames) != 1 || frames[0] != frame || rest != "" {
		res.Result = engine.ResultUnknown.String()
		res.Error = "payload is not a single frame"
	} else {
		ctx, cancel := b.commandContext()
		frames, result, err := b.cmd.Raw(ctx, frame)
		cancel()

		res.Result = result.String()
		res.Frames = frames
		if err != nil {
			res.Error = err.Error()
		}
	}

	data, err := json.Marshal(res)
	if err != nil {
		b.log.Error("Failed to encode command result", zap.Error(err))
		return
	}
	b.publish(b.topic("result"), false, data)
}

// zoneOf extracts <zone> from <prefix>/zone/<zone>/...
func (b *Bridge) zoneOf(topic string) string {
	rest := strings.TrimPrefix(topic, b.topic("zone")+"/")
	zone, _, _ := strings.Cut(rest, "/")
	return zone
}

func (b *Bridge) handleSetPoint(_ mqtt.Client, msg mqtt.Message) {
	zone := b.zoneOf(msg.Topic())
	celsius, err := strconv.ParseFloat(strings.TrimSpace(string(msg.Payload())), 64)
	if err != nil {
		b.log.Warn("Invalid set point payload", zap.String("zone", zone), zap.ByteString("payload", msg.Payload()))
		return
	}

	ctx, cancel := b.commandContext()
	defer cancel()
	if err := b.cmd.SetTemperature(ctx, zone, celsius); err != nil {
		b.log.Warn("Set point failed", zap.String("zone", zone), zap.Error(err))
	}
}

func (b *Bridge) handleSetMode(_ mqtt.Client, msg mqtt.Message) {
	zone := b.zoneOf(msg.Topic())
	mode := strings.TrimSpace(string(msg.Payload()))

	ctx, cancel := b.commandContext()
	defer cancel()
	if err := b.cmd.SetMode(ctx, zone, mode); err != nil {
		b.log.Warn("Set mode failed", zap.String("zone", zone), zap.String("mode", mode), zap.Error(err))
	}
}
