package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options describe one device's broker session. Each collecting device gets
// its own client so per-device credentials and client ids stay isolated.
type Options struct {
	Broker   string
	Port     int
	ClientID string
	Username string
	Password string
}

type Client struct {
	client mqtt.Client
}

type Message struct {
	mqtt.Message
}

func Connect(opts Options) (*Client, error) {
	co := mqtt.NewClientOptions()
	co.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)

	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", opts.Broker, "client_id", opts.ClientID, "error", err)
	}
	co.OnConnect = func(_ mqtt.Client) {
		slog.Info("mqtt connected", "broker", opts.Broker, "client_id", opts.ClientID)
	}

	c := mqtt.NewClient(co)
	tok := c.Connect()
	if ok := tok.WaitTimeout(15 * time.Second); !ok {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect timeout: %s:%d", opts.Broker, opts.Port)
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{client: c}, nil
}

func (c *Client) Subscribe(topic string, handler func(Message)) error {
	tok := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(Message{Message: msg})
	})
	tok.Wait()
	return tok.Error()
}

func (c *Client) Unsubscribe(topic string) error {
	tok := c.client.Unsubscribe(topic)
	tok.Wait()
	return tok.Error()
}

func (c *Client) Publish(topic string, payload []byte) error {
	tok := c.client.Publish(topic, 1, false, payload)
	tok.Wait()
	return tok.Error()
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(1000)
}
