// Package mqttv5 is the MQTT 5 transport, built on paho.golang. Like the 3.1.1
// transport it only queues inbound messages; Poll delivers them.
package mqttv5

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	"github.com/eclipse/paho.golang/paho"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultKeepAlive = 30 // seconds
	defaultQueueSize = 64
)

type Params struct {
	Timeout   time.Duration
	KeepAlive uint16 // seconds
	QueueSize int
	LogLevel  log.LogLevel
}

type message struct {
	topic   string
	payload []byte
}

type Client struct {
	paho      *paho.Client
	connected atomic.Bool // cleared from paho's goroutines
	timeout   time.Duration
	keepAlive uint16
	queue     chan message
	cb        func(topic string, payload []byte)
	router    *paho.StandardRouter
	logger    *log.Logger
}

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
	logger := log.NewWithPrefix(os.Stdout, os.Stderr, "[mqttv5]")
	logger.SetLevel(p.LogLevel)
	return &Client{
		timeout:   p.Timeout,
		keepAlive: p.KeepAlive,
		queue:     make(chan message, p.QueueSize),
		logger:    logger,
	}
}

func (c *Client) Bind(cb func(topic string, payload []byte)) error {
	if c.cb != nil {
		return meem.ErrTransportBound
	}
	c.cb = cb
	return nil
}

func (c *Client) Connect(broker string, port int, clientID string) error {
	c.Disconnect()
	c.drain()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(broker, fmt.Sprint(port)), c.timeout)
	if err != nil {
		return err
	}
	c.router = paho.NewStandardRouter()
	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		Router:   c.router,
		OnClientError: func(err error) {
			c.logger.Warnf("client error: %s", err)
			c.connected.Store(false)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.logger.Warnf("server disconnected, reason %d", d.ReasonCode)
			c.connected.Store(false)
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.logger.Debugf("connecting to %s:%d as %s", broker, port, clientID)
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  c.keepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	if ack.ReasonCode >= 0x80 {
		_ = conn.Close()
		return fmt.Errorf("connect refused, reason %d", ack.ReasonCode)
	}
	c.paho = client
	c.connected.Store(true)
	return nil
}

func (c *Client) Subscribe(topic string) error {
	if !c.Connected() {
		return meem.ErrNotConnected
	}
	c.router.RegisterHandler(topic, c.enqueue)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	ack, err := c.paho.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 0}},
	})
	if err != nil {
		return err
	}
	if len(ack.Reasons) == 0 || ack.Reasons[0] >= 0x80 {
		return fmt.Errorf("subscribe %s refused: %v", topic, ack.Reasons)
	}
	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	if !c.Connected() {
		return meem.ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	_, err := c.paho.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     0,
		Payload: payload,
	})
	return err
}

func (c *Client) Disconnect() {
	if c.paho == nil {
		return
	}
	// Also tears down paho's goroutines after a lost connection.
	if err := c.paho.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		c.logger.Debugf("disconnect: %s", err)
	}
	c.connected.Store(false)
	c.paho = nil
}

func (c *Client) Connected() bool {
	return c.paho != nil && c.connected.Load()
}

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

func (c *Client) Pending() int {
	return len(c.queue)
}

func (c *Client) enqueue(p *paho.Publish) {
	msg := message{topic: p.Topic, payload: append([]byte(nil), p.Payload...)}
	select {
	case c.queue <- msg:
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
