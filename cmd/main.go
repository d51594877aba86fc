package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/celerway/meem/config"
	"github.com/celerway/meem/device"
	"github.com/celerway/meem/identity"
	"github.com/celerway/meem/log"
)

// Flags win over the environment. A flag left at its zero value keeps the environment setting.
func setOptionStr(flagValue, current, name string) string {
	ret := current
	if flagValue != "" {
		ret = flagValue
	}
	log.Debugf("Option '%s' set to '%s'", name, ret)
	return ret
}

func setOptionInt(flagValue, current int, name string) int {
	ret := current
	if flagValue != 0 {
		ret = flagValue
	}
	log.Debugf("Option '%s' set to %d", name, ret)
	return ret
}

func setOptionBool(flagValue, current bool, name string) bool {
	ret := current || flagValue
	log.Debugf("Option '%s' is set to '%v'", name, ret)
	return ret
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Could not read configuration: %s", err)
	}
	logLevelPtr := flag.String("loglevel", "", "Log level (trace|debug|info|warn|error)")
	brokerPtr := flag.String("broker", "", "MQTT broker host, discovered over mDNS when empty")
	portPtr := flag.Int("port", 0, "MQTT port")
	idPtr := flag.String("id", "", "Device identity, generated on first start when empty")
	facetsPtr := flag.String("facets", "", "Path to the facet table")
	transportPtr := flag.String("transport", "", "mqtt3 or mqtt5")
	discoverPtr := flag.Bool("discover", false, "Look up the broker with mDNS")
	announcePtr := flag.Bool("announce-facets", false, "Publish the facet list after registering")
	healthPortPtr := flag.Int("health-port", 0, "Port for /healthz and /metrics")
	flag.Parse()

	cfg.LogLevel = setOptionStr(*logLevelPtr, cfg.LogLevel, "log level")
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)
	log.Info("Meem starting up.")

	cfg.Broker = setOptionStr(*brokerPtr, cfg.Broker, "broker")
	cfg.Port = setOptionInt(*portPtr, cfg.Port, "port")
	cfg.ID = setOptionStr(*idPtr, cfg.ID, "id")
	cfg.FacetFile = setOptionStr(*facetsPtr, cfg.FacetFile, "facet file")
	cfg.Transport = setOptionStr(*transportPtr, cfg.Transport, "transport")
	cfg.Discover = setOptionBool(*discoverPtr, cfg.Discover, "discover")
	cfg.AnnounceFacets = setOptionBool(*announcePtr, cfg.AnnounceFacets, "announce facets")
	cfg.HealthPort = setOptionInt(*healthPortPtr, cfg.HealthPort, "health port")
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	facets, err := config.LoadFacets(cfg.FacetFile)
	if err != nil {
		log.Fatalf("Could not load facets: %s", err)
	}

	store, err := identity.Open(cfg.StateDB)
	if err != nil {
		log.Fatalf("Could not open state: %s", err)
	}
	defer store.Close()
	id, err := store.Ensure(cfg.ID)
	if err != nil {
		log.Fatalf("Could not establish identity: %s", err)
	}
	if cfg.Name != "" {
		if err := store.SetName(cfg.Name); err != nil {
			log.Errorf("Could not store name: %s", err)
		}
	}
	if _, name, err := store.Load(); err == nil && name != "" {
		log.Infof("Device %s (%s)", id, name)
	} else {
		log.Infof("Device %s", id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	err = device.Run(ctx, device.Params{
		Config:   cfg,
		Identity: id,
		Facets:   facets,
		Names:    store,
		LogLevel: level,
	})
	if err != nil {
		log.Error(err)
		stop()
		store.Close()
		os.Exit(1)
	}
	log.Info("Meem exiting.")
}
