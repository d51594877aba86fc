package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/celerway/meem/meem"
	is2 "github.com/matryer/is"
)

func TestLoad_defaults(t *testing.T) {
	is := is2.New(t)
	cfg, err := Load()
	is.NoErr(err)
	is.Equal(cfg.Port, 1883)
	is.Equal(cfg.Root, "meem")
	is.Equal(cfg.Transport, TransportMQTT3)
	is.Equal(cfg.BufferSize, 128)
	is.Equal(cfg.RetryInterval, 5*time.Second)
	is.Equal(cfg.LoopInterval, 10*time.Millisecond)
	is.True(!cfg.TapEnabled())
}

func TestLoad_environment(t *testing.T) {
	is := is2.New(t)
	t.Setenv("MEEM_BROKER", "broker.local")
	t.Setenv("MEEM_PORT", "8883")
	t.Setenv("MEEM_TRANSPORT", "mqtt5")
	t.Setenv("MEEM_ANNOUNCE_FACETS", "true")
	t.Setenv("MEEM_RETRY_INTERVAL", "250ms")
	t.Setenv("MEEM_KAFKA_BROKER", "kafka.local")
	cfg, err := Load()
	is.NoErr(err)
	is.Equal(cfg.Broker, "broker.local")
	is.Equal(cfg.Port, 8883)
	is.Equal(cfg.Transport, TransportMQTT5)
	is.True(cfg.AnnounceFacets)
	is.Equal(cfg.RetryInterval, 250*time.Millisecond)
	is.True(cfg.TapEnabled())
	is.NoErr(cfg.Validate())
}

func TestValidate(t *testing.T) {
	is := is2.New(t)
	valid := func() *Config {
		return &Config{Broker: "b", Port: 1883, Transport: TransportMQTT3, BufferSize: 128,
			RetryInterval: time.Second, LoopInterval: time.Millisecond}
	}
	is.NoErr(valid().Validate())
	broken := []func(c *Config){
		func(c *Config) { c.Broker = "" },
		func(c *Config) { c.Port = 0 },
		func(c *Config) { c.Port = 70000 },
		func(c *Config) { c.Transport = "coap" },
		func(c *Config) { c.BufferSize = 8 },
		func(c *Config) { c.LoopInterval = 0 },
	}
	for _, breakIt := range broken {
		c := valid()
		breakIt(c)
		is.True(errors.Is(c.Validate(), ErrInvalidConfig))
	}
	c := valid()
	c.Broker = ""
	c.Discover = true
	is.NoErr(c.Validate()) // broker found at runtime
}

const facetYAML = `
facets:
  - name: temp
    kind: linear
    direction: out
  - name: relay
    kind: binary
    direction: in
    pin: 17
  - name: echo
    direction: out
    loopback: relay
`

func TestParseFacets(t *testing.T) {
	is := is2.New(t)
	facets, err := ParseFacets([]byte(facetYAML))
	is.NoErr(err)
	is.Equal(len(facets), 3)
	is.True(facets[0].Pin == nil)
	is.Equal(*facets[1].Pin, 17)
	is.Equal(facets[2].Loopback, "relay")

	descs, err := Descriptors(facets)
	is.NoErr(err)
	is.Equal(descs, []meem.FacetDesc{
		{Name: "temp", Kind: meem.Linear, Direction: meem.Out},
		{Name: "relay", Kind: meem.Binary, Direction: meem.In},
		{Name: "echo", Kind: meem.Binary, Direction: meem.Out},
	})
	is.Equal(Index(facets, "echo"), 2)
	is.Equal(Index(facets, "nope"), meem.NoFacet)
}

func TestParseFacets_errors(t *testing.T) {
	is := is2.New(t)
	bad := []string{
		"facets: []",
		"facets:\n  - name: a\n    direction: sideways\n",
		"facets:\n  - name: a\n    kind: pwm\n    direction: in\n",
		"facets:\n  - name: a\n    direction: out\n    loopback: b\n",
		"facets:\n  - name: a\n    direction: out\n  - name: b\n    direction: out\n    loopback: a\n",
		"facets: [",
	}
	for _, doc := range bad {
		_, err := ParseFacets([]byte(doc))
		is.True(err != nil) // doc
	}
}

func TestLoadFacets(t *testing.T) {
	is := is2.New(t)
	path := filepath.Join(t.TempDir(), "facets.yaml")
	is.NoErr(os.WriteFile(path, []byte(facetYAML), 0o600))
	facets, err := LoadFacets(path)
	is.NoErr(err)
	is.Equal(facets[0].Name, "temp")
	_, err = LoadFacets(filepath.Join(t.TempDir(), "missing.yaml"))
	is.True(err != nil)
}
