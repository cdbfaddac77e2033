package broker

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Handler consumes raw inbound publishes.
type Handler func(topic string, payload []byte)

// Options configures the broker connection.
type Options struct {
	Host           string
	Port           int
	ClientID       string
	Topics         Topics
	ConnectTimeout time.Duration
	OnMessage      Handler
	Logger         *slog.Logger
}

const publishTimeout = 5 * time.Second

// Client is the live MQTT connection. It resubscribes on every reconnect,
// so a broker restart costs at most the messages published while the link
// was down (inbound QoS 1 redelivers what the broker retained for us).
type Client struct {
	mqtt    mqtt.Client
	topics  Topics
	logger  *slog.Logger
	handler Handler
}

// Connect dials the broker and subscribes to the cell's inbound topics.
func Connect(opts Options) (*Client, error) {
	if opts.OnMessage == nil {
		return nil, fmt.Errorf("broker: OnMessage handler is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{topics: opts.Topics, logger: logger, handler: opts.OnMessage}

	// Suffix the client id so a restarted dispatcher does not collide
	// with the broker's half-expired previous session.
	clientID := fmt.Sprintf("%s-%s", opts.ClientID, uuid.NewString()[:8])

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Host, opts.Port)).
		SetClientID(clientID).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(true).
		// Handlers write to SQLite and may publish; they must not gate the
		// client's inbound loop.
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("Broker connection lost", "error", err)
		})

	c.mqtt = mqtt.NewClient(mqttOpts)
	token := c.mqtt.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout + time.Second) {
		return nil, fmt.Errorf("broker: connect to %s:%d timed out", opts.Host, opts.Port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("broker: connect to %s:%d: %w", opts.Host, opts.Port, err)
	}
	logger.Info("Connected to broker", "host", opts.Host, "port", opts.Port, "client_id", clientID)
	return c, nil
}

// onConnect runs on every successful (re)connect.
func (c *Client) onConnect(client mqtt.Client) {
	for _, filter := range c.topics.Subscriptions() {
		token := client.Subscribe(filter, 1, func(_ mqtt.Client, m mqtt.Message) {
			c.handler(m.Topic(), m.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Error("Failed to subscribe", "filter", filter, "error", err)
			continue
		}
		c.logger.Debug("Subscribed", "filter", filter)
	}
}

// Connected reports whether the MQTT session is currently up.
func (c *Client) Connected() bool {
	return c.mqtt.IsConnected()
}

// Publish sends one QoS 1, non-retained message.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.mqtt.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes in-flight messages and disconnects.
func (c *Client) Close() {
	c.mqtt.Disconnect(250)
}
