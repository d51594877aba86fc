package discovery

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	is2 "github.com/matryer/is"
)

func withQuery(t *testing.T, fn func(*mdns.QueryParam) error) {
	t.Helper()
	orig := query
	query = fn
	t.Cleanup(func() { query = orig })
}

func TestFindBroker_firstUsableAnswer(t *testing.T) {
	is := is2.New(t)
	withQuery(t, func(p *mdns.QueryParam) error {
		is.Equal(p.Service, Service)
		p.Entries <- &mdns.ServiceEntry{Name: "no-address", Port: 1883}
		p.Entries <- &mdns.ServiceEntry{Name: "broker-a._mqtt._tcp.local.", AddrV4: net.IPv4(192, 168, 1, 10), Port: 1883}
		p.Entries <- &mdns.ServiceEntry{Name: "broker-b._mqtt._tcp.local.", AddrV4: net.IPv4(192, 168, 1, 11), Port: 1884}
		return nil
	})
	b, err := FindBroker(time.Second)
	is.NoErr(err)
	is.Equal(b.Host, "192.168.1.10")
	is.Equal(b.Port, 1883)
	is.Equal(b.String(), "broker-a._mqtt._tcp.local. (192.168.1.10:1883)")
}

func TestFindBroker_nothing(t *testing.T) {
	is := is2.New(t)
	withQuery(t, func(p *mdns.QueryParam) error { return nil })
	_, err := FindBroker(time.Millisecond)
	is.True(errors.Is(err, ErrNotFound))
}

func TestFindBroker_queryError(t *testing.T) {
	is := is2.New(t)
	withQuery(t, func(p *mdns.QueryParam) error { return errors.New("no multicast interface") })
	_, err := FindBroker(time.Millisecond)
	is.True(err != nil)
	is.True(!errors.Is(err, ErrNotFound))
}

func TestFromEntry(t *testing.T) {
	is := is2.New(t)
	_, ok := fromEntry(nil)
	is.True(!ok)
	_, ok = fromEntry(&mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1)}) // no port
	is.True(!ok)
	b, ok := fromEntry(&mdns.ServiceEntry{AddrV6: net.ParseIP("fe80::1"), Port: 1883})
	is.True(ok)
	is.Equal(b.Host, "fe80::1")
	b, ok = fromEntry(&mdns.ServiceEntry{Host: "broker.local.", Port: 1883})
	is.True(ok)
	is.Equal(b.Host, "broker.local.")
}
