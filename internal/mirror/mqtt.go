// Package mirror republishes relay traffic to an MQTT broker.
//
// Every state broadcast goes to <prefix>/estado as a retained message, so a
// late subscriber immediately sees the latest snapshot, and every command
// forwarded to the device goes to <prefix>/comando. Publishing is
// fire-and-forget: failures are logged and counted, never returned to the
// router.
package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topic suffixes.
const (
	TopicState   = "estado"
	TopicCommand = "comando"
)

// ErrConnectTimeout is returned when the broker does not answer in time.
var ErrConnectTimeout = errors.New("mqtt connect timed out")

// Config configures the MQTT mirror.
type Config struct {
	Broker         string        // tcp://host:1883
	ClientID       string        // MQTT client id
	TopicPrefix    string        // Topic root, "rota" gives rota/estado and rota/comando
	QoS            byte          // 0, 1 or 2
	Username       string        // Optional
	Password       string        // Optional
	ConnectTimeout time.Duration // Initial connect wait
	PublishTimeout time.Duration // Per-message ack wait before logging a failure
}

// DefaultConfig returns sensible defaults. Broker is left empty.
func DefaultConfig() Config {
	return Config{
		ClientID:       "rota-relay",
		TopicPrefix:    "rota",
		QoS:            0,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

// Stats contains publish counters.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// publisher is the part of mqtt.Client the mirror uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher mirrors payloads to MQTT.
type Publisher struct {
	client         publisher
	qos            byte
	stateTopic     string
	commandTopic   string
	publishTimeout time.Duration
	logger         *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
}

// Connect dials the broker and returns a ready Publisher. The paho client
// keeps reconnecting on its own after the first successful connect.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}

	return newPublisher(client, cfg, logger), nil
}

func newPublisher(client publisher, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}

	return &Publisher{
		client:         client,
		qos:            cfg.QoS,
		stateTopic:     Topic(cfg.TopicPrefix, TopicState),
		commandTopic:   Topic(cfg.TopicPrefix, TopicCommand),
		publishTimeout: cfg.PublishTimeout,
		logger:         logger.With("component", "mirror"),
	}
}

// Topic joins prefix and suffix with a single slash.
func Topic(prefix, suffix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

// PublishState publishes a state snapshot as a retained message.
func (p *Publisher) PublishState(payload []byte) {
	p.publish(p.stateTopic, true, payload)
}

// PublishCommand publishes a command forwarded to the device.
func (p *Publisher) PublishCommand(payload []byte) {
	p.publish(p.commandTopic, false, payload)
}

func (p *Publisher) publish(topic string, retained bool, payload []byte) {
	token := p.client.Publish(topic, p.qos, retained, payload)

	go func() {
		if !token.WaitTimeout(p.publishTimeout) {
			p.failed.Add(1)
			p.logger.Warn("mqtt publish timed out", "topic", topic, "bytes", len(payload))
			return
		}
		if err := token.Error(); err != nil {
			p.failed.Add(1)
			p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
			return
		}
		p.published.Add(1)
	}()
}

// Stats returns publish counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

// Close disconnects from the broker, giving in-flight messages 250ms.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
	p.logger.Info("mqtt mirror closed")
}
