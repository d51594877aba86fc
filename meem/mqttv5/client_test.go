package mqttv5

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
	return Params{Timeout: 2 * time.Second, QueueSize: 8, LogLevel: log.ErrorLevel}
}

func TestClient_roundTrip(t *testing.T) {
	is := is2.New(t)
	broker := testbroker.Start(t)
	c := New(getTestParams())
	var got []testbroker.Message
	is.NoErr(c.Bind(func(topic string, payload []byte) {
		got = append(got, testbroker.Message{Topic: topic, Payload: string(payload)})
	}))
	is.NoErr(c.Connect("localhost", broker.Port, "v5"))
	defer c.Disconnect()
	is.True(c.Connected())
	is.NoErr(c.Subscribe("meem/v5/in/#"))

	out := broker.Subscribe(t, "meem/v5/out/#")
	is.NoErr(c.Publish("meem/v5/out/humidity", []byte("45")))
	is.Equal(testbroker.Next(t, out, 2*time.Second), testbroker.Message{Topic: "meem/v5/out/humidity", Payload: "45"})

	is.NoErr(broker.Publish("meem/v5/in/relay", ""))
	is.NoErr(testbroker.WaitFor(func() bool { return c.Pending() == 1 }, 2*time.Second, 10*time.Millisecond))
	is.True(c.Poll())
	is.Equal(got, []testbroker.Message{{Topic: "meem/v5/in/relay", Payload: ""}})
}

func TestClient_disconnect(t *testing.T) {
	is := is2.New(t)
	broker := testbroker.Start(t)
	c := New(getTestParams())
	is.NoErr(c.Bind(func(string, []byte) {}))
	is.NoErr(c.Connect("localhost", broker.Port, "v5-disc"))
	c.Disconnect()
	c.Disconnect()
	is.True(!c.Connected())
	is.True(!c.Poll())
	is.True(errors.Is(c.Publish("x", nil), meem.ErrNotConnected))
}

func TestClient_connectRefused(t *testing.T) {
	is := is2.New(t)
	c := New(getTestParams())
	err := c.Connect("localhost", testbroker.FreePort(t), "v5-refused")
	is.True(err != nil)
	is.True(!c.Connected())
}

// The adapter runs unchanged on the MQTT 5 transport.
func TestClient_withAdapter(t *testing.T) {
	is := is2.New(t)
	broker := testbroker.Start(t)
	registry := broker.Subscribe(t, "meem")
	c := New(getTestParams())
	var got []int
	a, err := meem.New(meem.Params{
		Identity:  "v5-dev",
		Facets:    []meem.FacetDesc{{Name: "relay", Kind: meem.Binary, Direction: meem.In}},
		Handler:   func(index int, _ string) { got = append(got, index) },
		Transport: c,
	})
	is.NoErr(err)
	is.NoErr(a.Connect("localhost", broker.Port))
	defer a.Disconnect()
	is.Equal(testbroker.Next(t, registry, 2*time.Second).Payload, "(add v5-dev)")

	is.NoErr(broker.Publish("meem/v5-dev/in/relay", "on"))
	is.NoErr(testbroker.WaitFor(func() bool { return c.Pending() == 1 }, 2*time.Second, 10*time.Millisecond))
	is.True(a.Loop())
	is.Equal(got, []int{0})
}
