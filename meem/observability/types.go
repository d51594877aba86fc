package observability

import (
	"sync/atomic"

	"github.com/celerway/meem/log"
	"github.com/prometheus/client_golang/prometheus"
)

type Channel chan StatusMessage

type StatusMessage int

const (
	InboundReceived StatusMessage = iota
	InboundUnmatched
	InboundRejected
	OutboundSent
	OutboundError
	Connected
	Disconnected
	ConnectError
	SubscribeError
	TapSent
	TapError
)

func (d StatusMessage) String() string {
	if d < InboundReceived || d > TapError {
		return "Unknown"
	}
	return [...]string{"InboundReceived", "InboundUnmatched", "InboundRejected", "OutboundSent",
		"OutboundError", "Connected", "Disconnected", "ConnectError", "SubscribeError",
		"TapSent", "TapError"}[d]
}

type Params struct {
	Channel    Channel
	HealthPort int
	LogLevel   log.LogLevel
}

type observability struct {
	channel         Channel
	inboundReceived prometheus.Counter
	inboundUnmatch  prometheus.Counter
	inboundRejected prometheus.Counter
	outboundSent    prometheus.Counter
	outboundErrors  prometheus.Counter
	connects        prometheus.Counter
	connectErrors   prometheus.Counter
	subscribeErrors prometheus.Counter
	tapSent         prometheus.Counter
	tapErrors       prometheus.Counter
	connected       prometheus.Gauge
	promReg         *prometheus.Registry
	logger          *log.Logger
	ready           atomic.Bool
	online          atomic.Bool // written by the channel worker, read by /healthz
	healthPort      int
}
