package tap

import (
	"context"
	"time"

	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	"github.com/celerway/meem/meem/observability"
	gokafka "github.com/segmentio/kafka-go"
)

// Writer is the part of the kafka writer the tap uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...gokafka.Message) error
}

type Params struct {
	Broker        string
	Port          int
	Topic         string
	Device        string // used as the record key
	Channel       meem.MessageChannel
	ObsChannel    observability.Channel
	BatchSize     int           // flush when this many records are buffered
	MaxBatchSize  int           // largest single write
	Interval      time.Duration // flush at least this often
	RetryInterval time.Duration // wait between writes while kafka is failing
	LogLevel      log.LogLevel
}

// Record is the JSON value written to kafka for every facet message.
type Record struct {
	Device    string    `json:"device"`
	Topic     string    `json:"topic"`
	Direction string    `json:"direction"`
	Content   []byte    `json:"content"`
	Time      time.Time `json:"time"`
}

type buffer struct {
	C                    meem.MessageChannel
	device               string
	topic                string
	writer               Writer
	buffer               []gokafka.Message
	batchSize            int
	maxBatchSize         int
	interval             time.Duration
	failureState         bool
	failures             int
	failureRetryInterval time.Duration
	lastSendAttempt      time.Time
	kafkaTimeout         time.Duration
	obsChannel           observability.Channel
	logger               *log.Logger
}
