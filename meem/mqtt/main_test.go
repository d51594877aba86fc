package mqtt

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/celerway/meem/internal/testbroker"
	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	is2 "github.com/matryer/is"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.ErrorLevel)
	os.Exit(m.Run())
}

func getTestParams() Params {
	return Params{
		Timeout:   2 * time.Second,
		QueueSize: 4,
		LogLevel:  log.ErrorLevel,
	}
}

func Test_Simple(t *testing.T) {
	is := is2.New(t)
	broker := testbroker.Start(t)
	c := New(getTestParams())
	var got []testbroker.Message
	is.NoErr(c.Bind(func(topic string, payload []byte) {
		got = append(got, testbroker.Message{Topic: topic, Payload: string(payload)})
	}))
	is.True(!c.Poll()) // not connected yet
	is.NoErr(c.Connect("localhost", broker.Port, "simple"))
	is.True(c.Connected())
	is.NoErr(c.Subscribe("meem/simple/in/#"))

	out := broker.Subscribe(t, "meem/simple/out/#")
	is.NoErr(c.Publish("meem/simple/out/temp", []byte("21.5")))
	msg := testbroker.Next(t, out, 2*time.Second)
	is.Equal(msg, testbroker.Message{Topic: "meem/simple/out/temp", Payload: "21.5"})

	is.NoErr(broker.Publish("meem/simple/in/relay", "on"))
	is.NoErr(testbroker.WaitFor(func() bool { return c.Pending() == 1 }, 2*time.Second, 10*time.Millisecond))
	is.Equal(len(got), 0) // nothing is delivered outside Poll
	is.True(c.Poll())
	is.Equal(got, []testbroker.Message{{Topic: "meem/simple/in/relay", Payload: "on"}})

	c.Disconnect()
	is.True(!c.Connected())
	c.Disconnect() // idempotent
}

func Test_QueueFullDrops(t *testing.T) {
	is := is2.New(t)
	broker := testbroker.Start(t)
	c := New(getTestParams())
	delivered := 0
	is.NoErr(c.Bind(func(string, []byte) { delivered++ }))
	is.NoErr(c.Connect("localhost", broker.Port, "full"))
	defer c.Disconnect()
	is.NoErr(c.Subscribe("meem/full/in/#"))
	for i := 0; i < 6; i++ {
		is.NoErr(broker.Publish("meem/full/in/x", "1"))
	}
	is.NoErr(testbroker.WaitFor(func() bool { return c.Pending() == 4 }, 2*time.Second, 10*time.Millisecond))
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 10; i++ {
		c.Poll()
	}
	is.Equal(delivered, 4) // queue capacity, the rest were dropped
}

func Test_ConnectionLost(t *testing.T) {
	is := is2.New(t)
	broker := testbroker.Start(t)
	c := New(getTestParams())
	is.NoErr(c.Bind(func(string, []byte) {}))
	is.NoErr(c.Connect("localhost", broker.Port, "lost"))
	is.True(c.Poll())
	broker.Close()
	is.NoErr(testbroker.WaitFor(func() bool { return !c.Poll() }, 5*time.Second, 20*time.Millisecond))
	is.True(errors.Is(c.Publish("meem/lost/out/x", nil), meem.ErrNotConnected))
	c.Disconnect()
}

func Test_ConnectRefused(t *testing.T) {
	is := is2.New(t)
	c := New(getTestParams())
	port := testbroker.FreePort(t) // nothing listens here
	err := c.Connect("localhost", port, "refused")
	is.True(err != nil)
	is.True(!c.Connected())
	is.True(errors.Is(c.Subscribe("x"), meem.ErrNotConnected))
}

func Test_BindOnce(t *testing.T) {
	is := is2.New(t)
	c := New(getTestParams())
	is.NoErr(c.Bind(func(string, []byte) {}))
	is.True(errors.Is(c.Bind(func(string, []byte) {}), meem.ErrTransportBound))
}
