package mqtt

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is the root of every topic the engine uses.
const DefaultTopicPrefix = "weavy"

const opTimeout = 10 * time.Second

// Client wraps the Paho MQTT client and scopes topics under a prefix.
type Client struct {
	client paho.Client
	prefix string
	mu     sync.Mutex
}

// BrokerURL returns the MQTT broker URL from env or default.
func BrokerURL() string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(clientID, prefix string) *Client {
	opts := paho.NewClientOptions().
		AddBroker(BrokerURL()).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	return newClient(paho.NewClient(opts), prefix)
}

func newClient(pc paho.Client, prefix string) *Client {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Client{client: pc, prefix: prefix}
}

// Topic joins parts under the client's prefix.
func (c *Client) Topic(parts ...string) string {
	return c.prefix + "/" + strings.Join(parts, "/")
}

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Unsubscribe removes the subscriptions for topics.
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "unsubscribe", Topic: strings.Join(topics, ",")}
	}
	return token.Error()
}

// Publish sends payload to topic at QoS 1.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(opTimeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// PublishEvent forwards an engine event to <prefix>/events/<name>.
func (c *Client) PublishEvent(name string, payload []byte) error {
	return c.Publish(c.Topic("events", name), payload)
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ErrNotConnected is returned when publishing while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// TimeoutError indicates a subscribe or publish timed out.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}
