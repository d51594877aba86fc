// Package mqtt is the MQTT 3.1.1 transport, built on the Eclipse paho client.
// Paho's handlers only queue messages; Poll delivers them on the caller's goroutine.
package mqtt

import (
	"fmt"
	"os"

	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	paho "github.com/eclipse/paho.mqtt.golang"
)

var _ meem.Transport = (*Client)(nil)

func New(p Params) *Client {
	if p.Timeout == 0 {
		p.Timeout = defaultTimeout
	}
	if p.KeepAlive == 0 {
		p.KeepAlive = defaultKeepAlive
	}
	if p.QueueSize <= 0 {
		p.QueueSize = defaultQueueSize
	}
	logger := log.NewWithPrefix(os.Stdout, os.Stderr, "[mqtt]")
	logger.SetLevel(p.LogLevel)
	return &Client{
		timeout:   p.Timeout,
		keepAlive: p.KeepAlive,
		queue:     make(chan message, p.QueueSize),
		logger:    logger,
	}
}

// Bind sets the function Poll delivers to. It can be set once.
func (c *Client) Bind(cb func(topic string, payload []byte)) error {
	if c.cb != nil {
		return meem.ErrTransportBound
	}
	c.cb = cb
	return nil
}

// Connect blocks until the broker accepts the connection or the timeout expires.
// There is no automatic reconnect.
func (c *Client) Connect(broker string, port int, clientID string) error {
	c.Disconnect()
	c.drain()
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", broker, port))
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.timeout)
	opts.SetKeepAlive(c.keepAlive)
	opts.SetDefaultPublishHandler(c.enqueue)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warnf("connection lost: %s", err)
	})
	client := paho.NewClient(opts)
	c.logger.Debugf("connecting to %s:%d as %s", broker, port, clientID)
	token := client.Connect()
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("connect: timeout after %v", c.timeout)
	}
	if err := token.Error(); err != nil {
		return err
	}
	c.paho = client
	return nil
}

func (c *Client) Subscribe(topic string) error {
	if !c.Connected() {
		return meem.ErrNotConnected
	}
	token := c.paho.Subscribe(topic, 0, c.enqueue)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe %s: timeout after %v", topic, c.timeout)
	}
	return token.Error()
}

func (c *Client) Publish(topic string, payload []byte) error {
	if !c.Connected() {
		return meem.ErrNotConnected
	}
	token := c.paho.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish %s: timeout after %v", topic, c.timeout)
	}
	return token.Error()
}

func (c *Client) Disconnect() {
	if c.paho == nil {
		return
	}
	if c.paho.IsConnected() {
		c.paho.Disconnect(disconnectQuiesce)
	}
	c.paho = nil
}

func (c *Client) Connected() bool {
	return c.paho != nil && c.paho.IsConnectionOpen()
}

// Poll hands at most one queued message to the bound function and reports whether the
// connection is still open.
func (c *Client) Poll() bool {
	select {
	case msg := <-c.queue:
		if c.cb != nil {
			c.cb(msg.topic, msg.payload)
		}
	default:
	}
	return c.Connected()
}

// Pending returns the number of queued inbound messages.
func (c *Client) Pending() int {
	return len(c.queue)
}

// enqueue runs on paho's goroutine. A full queue drops the message.
func (c *Client) enqueue(_ paho.Client, m paho.Message) {
	msg := message{topic: m.Topic(), payload: append([]byte(nil), m.Payload()...)}
	select {
	case c.queue <- msg:
		c.logger.Tracef("queued %d bytes on %s", len(msg.payload), msg.topic)
	default:
		c.logger.Warnf("inbound queue full, dropping message on %s", msg.topic)
	}
}

func (c *Client) drain() {
	for {
		select {
		case <-c.queue:
		default:
			return
		}
	}
}
