package meem

import (
	"github.com/celerway/meem/meem/observability"
)

// dispatch is bound to the transport and runs inside Loop. The payload is copied into the
// scratch buffer, refused outright when it does not fit, and handed on as a string. The
// buffer is released before any handler runs so the handler may publish.
func (a *Adapter) dispatch(topic string, payload []byte) {
	if err := a.scratch.acquire(); err != nil {
		a.logger.Errorf("inbound on %s: %s", topic, err)
		a.status(observability.InboundRejected)
		return
	}
	err := a.scratch.load(payload)
	value := a.scratch.String()
	a.scratch.release()
	if err != nil {
		a.logger.Warnf("dropping inbound on %s: %s", topic, err)
		a.status(observability.InboundRejected)
		return
	}
	a.status(observability.InboundReceived)
	a.mirror(ChannelMessage{Topic: topic, Content: []byte(value), Direction: In})

	if a.configHandler != nil && a.isConfigTopic(topic) {
		a.logger.Debugf("config message: %q", value)
		a.configHandler(value)
		return
	}
	index := MatchFacet(a.facets, topic)
	if index == NoFacet {
		a.logger.Debugf("no facet for %s", topic)
		a.status(observability.InboundUnmatched)
	} else {
		a.logger.Tracef("%s -> facet %d (%s)", topic, index, a.facets[index].Name)
	}
	a.handler(index, value)
}

func (a *Adapter) isConfigTopic(topic string) bool {
	config, err := a.topics.Config(a.identity)
	return err == nil && topic == config
}
