// Package device runs a meem device: it builds the adapter and its workers from the
// configuration and keeps the broker connection alive until the context is cancelled.
package device

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/celerway/meem/config"
	"github.com/celerway/meem/discovery"
	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	"github.com/celerway/meem/meem/mqtt"
	"github.com/celerway/meem/meem/mqttv5"
	"github.com/celerway/meem/meem/observability"
	"github.com/celerway/meem/meem/tap"
	"github.com/celerway/meem/pins"
)

const (
	obsChannelSize    = 100
	mirrorChannelSize = 256
	discoveryTimeout  = 3 * time.Second
)

// Run blocks until ctx is cancelled. The device announces its removal before returning.
func Run(ctx context.Context, p Params) error {
	cfg := p.Config
	logger := log.NewWithPrefix(os.Stdout, os.Stderr, "[device]")
	logger.SetLevel(p.LogLevel)

	descs, err := config.Descriptors(p.Facets)
	if err != nil {
		return err
	}
	bank, err := pins.Open(cfg.GpioChip, p.Facets, logger)
	if err != nil {
		return err
	}
	defer bank.Close()

	workerCtx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	defer func() {
		cancel()
		logger.Trace("waiting for workers")
		wg.Wait()
		logger.Infof("device stopped, %d goroutines left", runtime.NumGoroutine())
	}()

	obsCh := observability.GetChannel(obsChannelSize)
	obs := observability.Initialize(observability.Params{
		Channel:    obsCh,
		HealthPort: cfg.HealthPort,
		LogLevel:   p.LogLevel,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		obs.Run(workerCtx)
	}()

	var mirror meem.MessageChannel
	if cfg.TapEnabled() {
		mirror = make(meem.MessageChannel, mirrorChannelSize)
		t := tap.Initialize(tap.Params{
			Broker:        cfg.KafkaBroker,
			Port:          cfg.KafkaPort,
			Topic:         cfg.KafkaTopic,
			Device:        p.Identity,
			Channel:       mirror,
			ObsChannel:    obsCh,
			RetryInterval: cfg.RetryInterval,
			LogLevel:      p.LogLevel,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.Run(workerCtx); err != nil {
				logger.Errorf("tap disabled: %s", err)
			}
		}()
	}

	d := &device{
		cfg:    cfg,
		bank:   bank,
		names:  p.Names,
		find:   func() (discovery.Broker, error) { return discovery.FindBroker(discoveryTimeout) },
		logger: logger,
	}
	adapter, err := meem.New(meem.Params{
		Identity:       p.Identity,
		Facets:         descs,
		Handler:        d.handleInbound,
		ConfigHandler:  d.handleConfig,
		Transport:      newTransport(cfg, p.LogLevel),
		Root:           cfg.Root,
		BufferSize:     cfg.BufferSize,
		AnnounceFacets: cfg.AnnounceFacets,
		ObsChannel:     obsCh,
		Mirror:         mirror,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	d.adapter = adapter
	obs.Ready()
	d.mainloop(ctx)
	return nil
}

func newTransport(cfg *config.Config, level log.LogLevel) meem.Transport {
	if cfg.Transport == config.TransportMQTT5 {
		return mqttv5.New(mqttv5.Params{LogLevel: level})
	}
	return mqtt.New(mqtt.Params{LogLevel: level})
}

// mainloop connects, retrying at a fixed interval, then polls the adapter and publishes
// pin changes until the connection drops or ctx is cancelled.
func (d *device) mainloop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.LoopInterval)
	defer ticker.Stop()
	connected := false
	for {
		if !connected {
			if err := d.connect(); err != nil {
				d.logger.Warnf("%s, retrying in %v", err, d.cfg.RetryInterval)
				select {
				case <-ctx.Done():
					return
				case <-time.After(d.cfg.RetryInterval):
				}
				continue
			}
			connected = true
			d.bank.Forget()
		}
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down")
			d.adapter.Close()
			return
		case <-ticker.C:
		}
		if !d.adapter.Loop() {
			d.logger.Warn("broker connection lost")
			connected = false
			continue
		}
		d.bank.Drain(d.adapter.SendToOutboundFacet)
	}
}

func (d *device) connect() error {
	broker, port := d.cfg.Broker, d.cfg.Port
	if broker == "" {
		b, err := d.find()
		if err != nil {
			return err
		}
		d.logger.Infof("discovered broker %s", b)
		broker, port = b.Host, b.Port
	}
	return d.adapter.Connect(broker, port)
}

func (d *device) handleInbound(index int, payload string) {
	if index == meem.NoFacet {
		d.logger.Debugf("ignoring message for unknown facet: %q", payload)
		return
	}
	if err := d.bank.Apply(index, payload); err != nil {
		d.logger.Warnf("facet %d: %s", index, err)
	}
}

// handleConfig understands (name <device name>).
func (d *device) handleConfig(payload string) {
	name, ok := parseName(payload)
	if !ok {
		d.logger.Warnf("unsupported config message %q", payload)
		return
	}
	if d.names == nil {
		return
	}
	if err := d.names.SetName(name); err != nil {
		d.logger.Errorf("storing name: %s", err)
		return
	}
	d.logger.Infof("device name set to %q", name)
}

func parseName(payload string) (string, bool) {
	s := strings.TrimSpace(payload)
	if !strings.HasPrefix(s, "(name ") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	name := strings.TrimSpace(s[len("(name ") : len(s)-1])
	return name, name != ""
}
