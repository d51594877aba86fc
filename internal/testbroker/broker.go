// Package testbroker runs an in-process MQTT broker for tests.
package testbroker

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

type Message struct {
	Topic   string
	Payload string
}

type Broker struct {
	Port      int
	server    *mochi.Server
	subID     atomic.Int32
	closeOnce sync.Once
}

// Start runs a broker on a free localhost port. It is closed when the test ends.
func Start(t testing.TB) *Broker {
	t.Helper()
	return StartOn(t, FreePort(t))
}

// StartOn runs a broker on the given port, e.g. to bring back one that was closed.
func StartOn(t testing.TB, port int) *Broker {
	t.Helper()
	server := mochi.New(&mochi.Options{InlineClient: true})
	server.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("adding auth hook: %s", err)
	}
	tcp := listeners.NewTCP(listeners.Config{
		ID:      "test",
		Address: fmt.Sprintf("localhost:%d", port),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("adding listener: %s", err)
	}
	if err := server.Serve(); err != nil {
		t.Fatalf("starting broker: %s", err)
	}
	b := &Broker{Port: port, server: server}
	t.Cleanup(b.Close)
	return b
}

// Close stops the broker and drops every client connection.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		_ = b.server.Close()
	})
}

// Publish injects a message as if another client had sent it.
func (b *Broker) Publish(topic, payload string) error {
	return b.server.Publish(topic, []byte(payload), false, 0)
}

// Subscribe collects everything published on filter into the returned channel.
func (b *Broker) Subscribe(t testing.TB, filter string) <-chan Message {
	t.Helper()
	ch := make(chan Message, 100)
	id := int(b.subID.Add(1))
	err := b.server.Subscribe(filter, id, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		select {
		case ch <- Message{Topic: pk.TopicName, Payload: string(pk.Payload)}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribing to %s: %s", filter, err)
	}
	return ch
}

// Next returns the next message on ch or fails the test after timeout.
func Next(t testing.TB, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("no message within %v", timeout)
	}
	return Message{}
}

// WaitFor polls cond until it holds or the timeout expires.
func WaitFor(cond func() bool, timeout, sleeptime time.Duration) error {
	start := time.Now()
	for time.Since(start) < timeout {
		if cond() {
			return nil
		}
		time.Sleep(sleeptime)
	}
	return fmt.Errorf("condition not met after %v", timeout)
}

func FreePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("finding a free port: %s", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
