package mqtt

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"frigate-occupancy/internal/logger"
	"frigate-occupancy/internal/metrics"
	"frigate-occupancy/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Client is the transport adapter: it keeps the broker connection alive,
// subscribes to the lifecycle topic and the count wildcard, and hands raw
// (topic, payload) pairs to the engine without parsing them.
type Client struct {
	client  mqtt.Client
	config  models.MQTTConfig
	ingest  chan<- models.Message
	metrics *metrics.Metrics
	log     *logger.Log

	availabilityTopic string
	dropUpdates       bool

	// connecting makes the reconnect attempt idempotent against the
	// health-check timer firing while a reconnect is already in flight.
	connecting atomic.Bool
	closed     atomic.Bool
}

type ClientOption func(*Client)

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithAvailabilityTopic publishes online/offline (with a matching LWT) on
// the given retained topic.
func WithAvailabilityTopic(topic string) ClientOption {
	return func(c *Client) {
		c.availabilityTopic = topic
	}
}

// WithUpdateFilter drops lifecycle "update" payloads at the transport.
// They are high-frequency and redundant with the count feed, so in the
// steady state they never reach the engine.
func WithUpdateFilter(enabled bool) ClientOption {
	return func(c *Client) {
		c.dropUpdates = enabled
	}
}

func NewClient(cfg models.MQTTConfig, ingest chan<- models.Message, opts ...ClientOption) *Client {
	c := &Client{
		config: cfg,
		ingest: ingest,
		log:    logger.Component("mqtt"),
	}
	for _, opt := range opts {
		opt(c)
	}

	pahoOpts := mqtt.NewClientOptions()
	pahoOpts.AddBroker(cfg.Broker)
	// Unique suffix so a second instance never steals this session.
	pahoOpts.SetClientID(cfg.ClientID + "-" + uuid.NewString()[:8])

	if cfg.User != "" {
		pahoOpts.SetUsername(cfg.User)
		pahoOpts.SetPassword(cfg.Password)
	}

	// Reconnect policy is ours, not paho's: the guarded reconnect below
	// plus the health-check loop.
	pahoOpts.SetAutoReconnect(false)
	pahoOpts.SetCleanSession(true)
	pahoOpts.SetConnectTimeout(10 * time.Second)
	pahoOpts.SetKeepAlive(30 * time.Second)

	if c.availabilityTopic != "" {
		pahoOpts.SetWill(c.availabilityTopic, "offline", 0, true)
	}

	pahoOpts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.log.Infof("connected to broker %s", cfg.Broker)
		c.metrics.SetConnected(true)
		c.subscribe()
		if c.availabilityTopic != "" {
			_ = c.Publish(c.availabilityTopic, []byte("online"), true)
		}
	})
	pahoOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warnf("lost connection to broker: %v", err)
		c.metrics.SetConnected(false)
		go c.reconnect()
	})

	c.client = mqtt.NewClient(pahoOpts)
	return c
}

func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// subscribe runs on every (re)connect; with clean sessions the broker
// forgets our subscriptions between connections.
func (c *Client) subscribe() {
	subs := map[string]byte{
		c.config.EventsTopic:          0,
		c.config.TopicPrefix + "/+/+": 0,
	}
	token := c.client.SubscribeMultiple(subs, c.onMessage)
	if token.Wait() && token.Error() != nil {
		c.log.Errorf("subscribe failed: %v", token.Error())
		return
	}
	c.log.Infof("subscribed to %s and %s/+/+", c.config.EventsTopic, c.config.TopicPrefix)
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	if c.dropUpdates && topic == c.config.EventsTopic && isUpdatePayload(payload) {
		c.metrics.IncDropped("update_filtered")
		return
	}

	c.ingest <- models.Message{Topic: topic, Payload: payload}
}

// isUpdatePayload is a byte scan, not a parse; anything it misses still
// gets handled correctly by the engine's compat path.
func isUpdatePayload(payload []byte) bool {
	return bytes.Contains(payload, []byte(`"type":"update"`)) ||
		bytes.Contains(payload, []byte(`"type": "update"`))
}

// reconnect retries with a fixed delay until connected or the client is
// closed. The connecting flag collapses overlapping triggers (connection
// lost callback racing the health-check timer) into one attempt.
func (c *Client) reconnect() {
	if !c.connecting.CompareAndSwap(false, true) {
		return
	}
	defer c.connecting.Store(false)

	delay := time.Duration(c.config.ReconnectDelay) * time.Second
	for !c.closed.Load() {
		if c.client.IsConnectionOpen() {
			return
		}
		c.metrics.IncReconnect()
		c.log.Noticef("reconnecting to broker %s", c.config.Broker)
		token := c.client.Connect()
		if token.Wait() && token.Error() == nil {
			return
		}
		c.log.Errorf("reconnect failed: %v", token.Error())
		time.Sleep(delay)
	}
}

// HealthLoop periodically verifies the connection and triggers the guarded
// reconnect when it is down. Runs until ctx is cancelled.
func (c *Client) HealthLoop(ctx context.Context) error {
	interval := time.Duration(c.config.HealthCheckInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.client.IsConnectionOpen() {
				c.log.Warnf("health check: broker connection down")
				c.reconnect()
			}
		}
	}
}

func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	token := c.client.Publish(topic, 0, retained, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *Client) Disconnect() {
	c.closed.Store(true)
	if c.availabilityTopic != "" && c.client.IsConnectionOpen() {
		_ = c.Publish(c.availabilityTopic, []byte("offline"), true)
	}
	c.client.Disconnect(250)
}
