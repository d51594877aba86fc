package device

import (
	"github.com/celerway/meem/config"
	"github.com/celerway/meem/discovery"
	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem"
	"github.com/celerway/meem/pins"
)

// NameStore keeps the device name set through the configuration topic.
type NameStore interface {
	SetName(name string) error
}

type Params struct {
	Config   *config.Config
	Identity string
	Facets   []config.Facet
	Names    NameStore // optional
	LogLevel log.LogLevel
}

type device struct {
	cfg     *config.Config
	adapter *meem.Adapter
	bank    *pins.Bank
	names   NameStore
	find    func() (discovery.Broker, error)
	logger  *log.Logger
}
