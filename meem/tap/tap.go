// Package tap mirrors the adapter's facet traffic into a kafka topic. Records are
// buffered and written in batches; while kafka is failing the buffer grows and writes
// are retried at a fixed interval.
package tap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	"github.com/celerway/meem/meem/observability"
	gokafka "github.com/segmentio/kafka-go"
)

const (
	defaultBatchSize     = 20
	defaultMaxBatchSize  = 200
	defaultInterval      = time.Second
	defaultRetryInterval = 5 * time.Second
)

func Initialize(p Params) *buffer {
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatchSize
	}
	if p.MaxBatchSize < p.BatchSize {
		p.MaxBatchSize = max(defaultMaxBatchSize, p.BatchSize)
	}
	if p.Interval <= 0 {
		p.Interval = defaultInterval
	}
	if p.RetryInterval <= 0 {
		p.RetryInterval = defaultRetryInterval
	}
	writer := &gokafka.Writer{
		Addr:         gokafka.TCP(p.Broker + ":" + strconv.Itoa(p.Port)),
		Topic:        p.Topic,
		Balancer:     &gokafka.Hash{},
		MaxAttempts:  3,
		BatchSize:    p.MaxBatchSize,
		BatchTimeout: 20 * time.Millisecond,
		RequiredAcks: gokafka.RequireAll,
		ErrorLogger:  log.NewWithPrefix(os.Stdout, os.Stderr, "[kafka-internal]"),
	}
	logger := log.NewWithPrefix(os.Stdout, os.Stderr, "[tap]")
	logger.SetLevel(p.LogLevel)
	return &buffer{
		C:                    p.Channel,
		device:               p.Device,
		topic:                p.Topic,
		writer:               writer,
		buffer:               make([]gokafka.Message, 0, p.BatchSize),
		batchSize:            p.BatchSize,
		maxBatchSize:         p.MaxBatchSize,
		interval:             p.Interval,
		failureRetryInterval: p.RetryInterval,
		kafkaTimeout:         10 * time.Second,
		obsChannel:           p.ObsChannel,
		logger:               logger,
	}
}

// Run checks that kafka accepts writes, then buffers records from the channel until the
// context is cancelled. Whatever is buffered at that point gets one last write attempt.
func (k *buffer) Run(ctx context.Context) error {
	if err := k.sendStartMarker(); err != nil {
		return fmt.Errorf("tap: kafka not reachable: %w", err)
	}
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	k.logger.Infof("tap started, topic %s, interval %v, batch size %d", k.topic, k.interval, k.batchSize)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if time.Since(k.lastSendAttempt) > k.interval {
				k.Send(false)
			}
		case m := <-k.C:
			k.Enqueue(m)
		}
	}
	k.logger.Debugf("final flush, %d records buffered", len(k.buffer))
	k.Send(true)
	return nil
}

// Enqueue converts a facet message to a record and buffers it. A full batch is sent
// right away unless kafka is failing.
func (k *buffer) Enqueue(msg meem.ChannelMessage) {
	value, err := json.Marshal(k.record(msg))
	if err != nil {
		k.logger.Errorf("encoding record for %s: %s", msg.Topic, err)
		return
	}
	k.buffer = append(k.buffer, gokafka.Message{Key: []byte(k.device), Value: value})
	if len(k.buffer) >= k.batchSize && !k.failureState {
		k.Send(false)
	}
}

func (k *buffer) record(msg meem.ChannelMessage) Record {
	return Record{
		Device:    k.device,
		Topic:     msg.Topic,
		Direction: msg.Direction.String(),
		Content:   msg.Content,
		Time:      time.Now().UTC(),
	}
}

// Send writes the buffer. While failing, writes are only attempted once per retry
// interval unless forced.
func (k *buffer) Send(force bool) {
	if len(k.buffer) == 0 {
		return
	}
	if k.failureState && !force && time.Since(k.lastSendAttempt) < k.failureRetryInterval {
		return
	}
	defer k.updateLastSendAttempt()
	start := time.Now()
	n := len(k.buffer)
	var err error
	if n <= k.maxBatchSize {
		err = k.sendAll()
	} else {
		err = k.sendBatched()
	}
	if err != nil {
		k.failures++
		k.failureState = true
		k.logger.Warnf("write failed: %s (buffered: %d, took %v, failures: %d)", err, len(k.buffer), time.Since(start), k.failures)
		return
	}
	k.failureState = false
	k.logger.Debugf("wrote %d records in %v", n, time.Since(start))
}

func (k *buffer) sendAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), k.kafkaTimeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, k.buffer...); err != nil {
		k.status(observability.TapError)
		return err
	}
	k.status(observability.TapSent)
	k.buffer = k.buffer[:0]
	return nil
}

// sendBatched writes maxBatchSize records at a time. Written batches leave the buffer
// even when a later batch fails, so nothing is written twice.
func (k *buffer) sendBatched() error {
	batches := (len(k.buffer) + k.maxBatchSize - 1) / k.maxBatchSize
	ctx, cancel := context.WithTimeout(context.Background(), k.kafkaTimeout*time.Duration(batches))
	defer cancel()
	for batch := 1; len(k.buffer) > 0; batch++ {
		n := min(len(k.buffer), k.maxBatchSize)
		if err := k.writer.WriteMessages(ctx, k.buffer[:n]...); err != nil {
			k.status(observability.TapError)
			return fmt.Errorf("batch %d of %d: %w", batch, batches, err)
		}
		k.status(observability.TapSent)
		k.buffer = k.buffer[n:]
	}
	return nil
}

// sendStartMarker writes one record with the empty topic. Consumers should skip it.
func (k *buffer) sendStartMarker() error {
	ctx, cancel := context.WithTimeout(context.Background(), k.kafkaTimeout)
	defer cancel()
	value, err := json.Marshal(Record{Device: k.device, Content: []byte("(tap started)"), Time: time.Now().UTC()})
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, gokafka.Message{Key: []byte(k.device), Value: value})
}

func (k *buffer) updateLastSendAttempt() {
	k.lastSendAttempt = time.Now()
}

func (k *buffer) status(msg observability.StatusMessage) {
	if k.obsChannel == nil {
		return
	}
	select {
	case k.obsChannel <- msg:
	default:
	}
}
