package mqtt

import (
	"time"

	"github.com/celerway/meem/log"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultKeepAlive  = 30 * time.Second
	defaultQueueSize  = 64
	disconnectQuiesce = 250 // milliseconds
)

type Params struct {
	Timeout   time.Duration // connect, subscribe and publish
	KeepAlive time.Duration
	QueueSize int // inbound messages held until polled
	LogLevel  log.LogLevel
}

type message struct {
	topic   string
	payload []byte
}

// Client is an MQTT 3.1.1 transport for the meem adapter.
type Client struct {
	paho      paho.Client
	timeout   time.Duration
	keepAlive time.Duration
	queue     chan message
	cb        func(topic string, payload []byte)
	logger    *log.Logger
}
