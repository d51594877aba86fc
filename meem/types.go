package meem

import (
	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem/observability"
)

// InboundFunc receives the index of the matched facet, or NoFacet, and the payload.
type InboundFunc func(facet int, payload string)

// ConfigFunc receives payloads sent to the reserved configuration topic.
type ConfigFunc func(payload string)

// Transport is the MQTT client the adapter drives. Implementations must deliver
// inbound messages only from within Poll, on the caller's goroutine, and accept
// exactly one callback through Bind.
type Transport interface {
	Connect(broker string, port int, clientID string) error
	Subscribe(topic string) error
	Publish(topic string, payload []byte) error
	Disconnect()
	Connected() bool
	// Poll hands at most one pending message to the bound callback and reports liveness.
	Poll() bool
	Bind(cb func(topic string, payload []byte)) error
}

type Params struct {
	Identity      string
	Facets        []FacetDesc
	Handler       InboundFunc
	ConfigHandler ConfigFunc // optional
	Transport     Transport
	Root          string // DefaultRoot when empty
	BufferSize    int    // DefaultBufferSize when zero
	// AnnounceFacets publishes the facet table on the device topic after connecting.
	AnnounceFacets bool
	ObsChannel     observability.Channel // optional
	Mirror         MessageChannel        // optional, receives a copy of every facet message
	Logger         *log.Logger           // optional
}

// ChannelMessage is a facet message as seen by the adapter. Direction is In for
// dispatched messages and Out for published ones.
type ChannelMessage struct {
	Topic     string
	Content   []byte
	Direction Direction
}

type MessageChannel chan ChannelMessage

type Adapter struct {
	transport     Transport
	facets        []FacetDesc
	handler       InboundFunc
	configHandler ConfigFunc
	topics        Topics
	identity      string
	scratch       *scratch
	announce      bool
	subscribed    bool
	online        bool
	obsChannel    observability.Channel
	mirrorCh      MessageChannel
	logger        *log.Logger
}
