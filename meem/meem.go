// Package meem maps a device's local facets onto MQTT topics. The adapter registers the
// device on the broker, routes inbound messages to facets and publishes facet readings.
//
// All methods must be called from one goroutine. Inbound handlers run synchronously
// inside Loop.
package meem

import (
	"fmt"
	"os"
	"strings"

	"github.com/celerway/meem/log"
	"github.com/celerway/meem/meem/observability"
)

// New validates the facet table and binds the adapter to the transport. A transport
// delivers to one adapter only.
func New(p Params) (*Adapter, error) {
	if p.Transport == nil {
		return nil, ErrNoTransport
	}
	if p.Handler == nil {
		return nil, ErrNoHandler
	}
	if err := validateSegment(p.Identity); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	if err := validateFacets(p.Facets); err != nil {
		return nil, err
	}
	if p.Root == "" {
		p.Root = DefaultRoot
	}
	if err := validateRoot(p.Root); err != nil {
		return nil, err
	}
	if p.BufferSize <= 0 {
		p.BufferSize = DefaultBufferSize
	}
	logger := p.Logger
	if logger == nil {
		logger = log.NewWithPrefix(os.Stdout, os.Stderr, "[meem]")
	}
	a := &Adapter{
		transport:     p.Transport,
		facets:        p.Facets,
		handler:       p.Handler,
		configHandler: p.ConfigHandler,
		topics:        Topics{Root: p.Root, Capacity: p.BufferSize},
		identity:      p.Identity,
		scratch:       newScratch(p.BufferSize),
		announce:      p.AnnounceFacets,
		obsChannel:    p.ObsChannel,
		mirrorCh:      p.Mirror,
		logger:        logger.WithField("meem", p.Identity),
	}
	if err := p.Transport.Bind(a.dispatch); err != nil {
		return nil, fmt.Errorf("binding transport: %w", err)
	}
	return a, nil
}

// Connect (re)connects to the broker using the identity as client id, subscribes to the
// inbound wildcard and announces the device. A subscribe or announcement failure is logged
// and counted but keeps the connection. Nothing is published when the connect step fails.
func (a *Adapter) Connect(broker string, port int) error {
	if a.transport.Connected() {
		a.logger.Debug("closing existing connection before reconnect")
		a.Disconnect()
	}
	// Everything that can be refused is built before touching the network.
	registry, err := a.topics.Registry()
	if err != nil {
		return err
	}
	lifecycle, err := a.topics.Lifecycle(a.identity)
	if err != nil {
		return err
	}
	wildcard, err := a.topics.InboundWildcard(a.identity)
	if err != nil {
		return err
	}
	add, err := a.control("add", a.identity)
	if err != nil {
		return err
	}
	ready, err := a.control("state", "ready")
	if err != nil {
		return err
	}
	var device string
	if a.announce {
		if device, err = a.topics.Device(a.identity); err != nil {
			return err
		}
	}

	a.logger.Debugf("connecting to %s:%d", broker, port)
	if err := a.transport.Connect(broker, port, a.identity); err != nil {
		a.status(observability.ConnectError)
		return fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, broker, port, err)
	}
	a.online = true
	a.status(observability.Connected)

	if err := a.transport.Subscribe(wildcard); err != nil {
		a.logger.Warnf("%s: %s: %s", ErrSubscribeFailed, wildcard, err)
		a.status(observability.SubscribeError)
	} else {
		a.subscribed = true
		a.logger.Tracef("subscribed to %s", wildcard)
	}
	a.announceControl(registry, add)
	a.announceControl(lifecycle, ready)
	if a.announce {
		a.announceControl(device, []byte(announcement(a.facets)))
	}
	a.logger.Infof("connected to %s:%d", broker, port)
	return nil
}

// Loop polls the transport once, dispatching at most one inbound message. A false return
// means the connection is gone and Connect should be called again.
func (a *Adapter) Loop() bool {
	alive := a.transport.Poll()
	if !alive && a.online {
		a.logger.Warn("connection lost")
		a.online = false
		a.subscribed = false
		a.status(observability.Disconnected)
	}
	return alive
}

// Disconnect closes the broker connection. It is a no-op when not connected.
func (a *Adapter) Disconnect() {
	if a.transport.Connected() {
		a.transport.Disconnect()
		a.logger.Debug("disconnected")
	}
	if a.online {
		a.status(observability.Disconnected)
	}
	a.online = false
	a.subscribed = false
}

// Close announces the removal of the device, when connected, and disconnects.
func (a *Adapter) Close() {
	if a.transport.Connected() {
		if registry, err := a.topics.Registry(); err == nil {
			if remove, err := a.control("remove", a.identity); err == nil {
				a.announceControl(registry, remove)
			}
		}
		if lifecycle, err := a.topics.Lifecycle(a.identity); err == nil {
			if stopped, err := a.control("state", "stopped"); err == nil {
				a.announceControl(lifecycle, stopped)
			}
		}
	}
	a.Disconnect()
}

// SetIdentity changes the device identity. It is refused while connected.
func (a *Adapter) SetIdentity(id string) error {
	if a.transport.Connected() {
		return ErrConnected
	}
	if err := validateSegment(id); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if _, err := a.topics.InboundWildcard(id); err != nil {
		return err
	}
	a.identity = id
	a.logger = a.logger.WithField("meem", id)
	return nil
}

func (a *Adapter) Identity() string {
	return a.identity
}

// Facets returns a copy of the facet table.
func (a *Adapter) Facets() []FacetDesc {
	return append([]FacetDesc(nil), a.facets...)
}

// Subscribed reports whether the inbound wildcard subscription of the current connection succeeded.
func (a *Adapter) Subscribed() bool {
	return a.subscribed
}

// Topics returns the topic builder in use.
func (a *Adapter) Topics() Topics {
	return a.topics
}

// SendToOutboundFacet publishes payload verbatim on the outbound topic of the facet at index.
func (a *Adapter) SendToOutboundFacet(index int, payload string) error {
	return a.SendToOutboundFacetBytes(index, []byte(payload))
}

func (a *Adapter) SendToOutboundFacetBytes(index int, payload []byte) error {
	if index < 0 || index >= len(a.facets) {
		return fmt.Errorf("%w: %d, have %d facets", ErrFacetIndex, index, len(a.facets))
	}
	topic, err := a.topics.Outbound(a.identity, a.facets[index].Name)
	if err != nil {
		return err
	}
	if err := a.publish(topic, payload); err != nil {
		return err
	}
	a.mirror(ChannelMessage{Topic: topic, Content: append([]byte(nil), payload...), Direction: Out})
	return nil
}

func (a *Adapter) publish(topic string, payload []byte) error {
	if !a.transport.Connected() {
		a.status(observability.OutboundError)
		return ErrNotConnected
	}
	if err := a.transport.Publish(topic, payload); err != nil {
		a.status(observability.OutboundError)
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	a.status(observability.OutboundSent)
	a.logger.Tracef("published %d bytes on %s", len(payload), topic)
	return nil
}

// announceControl publishes a control message. Failures are logged only.
func (a *Adapter) announceControl(topic string, payload []byte) {
	if err := a.publish(topic, payload); err != nil {
		a.logger.Warnf("announcing %q: %s", payload, err)
	}
}

// control renders "(verb arg)" in the scratch buffer and returns a copy.
func (a *Adapter) control(verb, arg string) ([]byte, error) {
	if err := a.scratch.acquire(); err != nil {
		return nil, err
	}
	defer a.scratch.release()
	for _, s := range []string{"(", verb, " ", arg, ")"} {
		if err := a.scratch.appendString(s); err != nil {
			return nil, err
		}
	}
	return []byte(a.scratch.String()), nil
}

// announcement renders the facet table as (facets ((name kind dir) ...)).
func announcement(facets []FacetDesc) string {
	var sb strings.Builder
	sb.WriteString("(facets (")
	for i, f := range facets {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(f.String())
	}
	sb.WriteString("))")
	return sb.String()
}

func (a *Adapter) status(msg observability.StatusMessage) {
	if a.obsChannel == nil {
		return
	}
	select {
	case a.obsChannel <- msg:
	default:
	}
}

func (a *Adapter) mirror(msg ChannelMessage) {
	if a.mirrorCh == nil {
		return
	}
	select {
	case a.mirrorCh <- msg:
	default:
		a.logger.Tracef("mirror channel full, dropping %s", msg.Topic)
	}
}
