// Package discovery finds an MQTT broker on the local network with mDNS.
package discovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/mdns"
)

// Service is the DNS-SD type brokers advertise themselves under.
const Service = "_mqtt._tcp"

var ErrNotFound = errors.New("discovery: no broker found")

type Broker struct {
	Name string
	Host string
	Port int
}

func (b Broker) String() string {
	return fmt.Sprintf("%s (%s:%d)", b.Name, b.Host, b.Port)
}

// query is replaced in tests.
var query = mdns.Query

// FindBroker returns the first broker answering within timeout.
func FindBroker(timeout time.Duration) (Broker, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan Broker, 1)
	go func() {
		defer close(found)
		for entry := range entries {
			if b, ok := fromEntry(entry); ok {
				found <- b
				break
			}
		}
		for range entries {
		}
	}()
	err := query(&mdns.QueryParam{
		Service:     Service,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	if err != nil {
		return Broker{}, fmt.Errorf("mdns query: %w", err)
	}
	b, ok := <-found
	if !ok {
		return Broker{}, ErrNotFound
	}
	return b, nil
}

func fromEntry(entry *mdns.ServiceEntry) (Broker, bool) {
	if entry == nil || entry.Port == 0 {
		return Broker{}, false
	}
	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	case entry.Host != "":
		host = entry.Host
	default:
		return Broker{}, false
	}
	return Broker{Name: entry.Name, Host: host, Port: entry.Port}, true
}
