package netstat

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/ghalamif/AegisNet/internal/ports"
)

var ErrNoDefaultRoute = errors.New("no default route")

// handle is the subset of netlink used here.
type handle interface {
	LinkByName(name string) (netlink.Link, error)
	LinkList() ([]netlink.Link, error)
	RouteList(link netlink.Link, family int) ([]netlink.Route, error)
}

type systemHandle struct{}

func (systemHandle) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }
func (systemHandle) LinkList() ([]netlink.Link, error)            { return netlink.LinkList() }
func (systemHandle) RouteList(link netlink.Link, family int) ([]netlink.Route, error) {
	return netlink.RouteList(link, family)
}

// Interfaces reads byte counters of one interface, or the sum over every
// non-loopback interface when no name is configured.
type Interfaces struct {
	name string
	h    handle
	now  func() time.Time
}

// NewInterfaces fails when a configured interface does not exist.
func NewInterfaces(name string) (*Interfaces, error) {
	return newInterfaces(name, systemHandle{})
}

func newInterfaces(name string, h handle) (*Interfaces, error) {
	if name != "" {
		if _, err := h.LinkByName(name); err != nil {
			return nil, fmt.Errorf("interface %q: %w", name, err)
		}
	}
	return &Interfaces{name: name, h: h, now: time.Now}, nil
}

func (i *Interfaces) ReadCounters() (ports.Counters, error) {
	var links []netlink.Link
	if i.name != "" {
		l, err := i.h.LinkByName(i.name)
		if err != nil {
			return ports.Counters{}, err
		}
		links = []netlink.Link{l}
	} else {
		all, err := i.h.LinkList()
		if err != nil {
			return ports.Counters{}, err
		}
		links = all
	}

	c := ports.Counters{At: i.now()}
	for _, l := range links {
		attrs := l.Attrs()
		if attrs == nil || attrs.Statistics == nil {
			continue
		}
		if i.name == "" && attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		c.BytesSent += attrs.Statistics.TxBytes
		c.BytesRecv += attrs.Statistics.RxBytes
	}
	return c, nil
}

// Gateway resolves the IPv4 default gateway from the routing table.
type Gateway struct {
	h handle
}

func NewGateway() *Gateway { return &Gateway{h: systemHandle{}} }

func (g *Gateway) DefaultGateway() (string, error) {
	routes, err := g.h.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", err
	}
	for _, r := range routes {
		if r.Gw == nil {
			continue
		}
		if r.Dst == nil || isDefault(r.Dst) {
			return r.Gw.String(), nil
		}
	}
	return "", ErrNoDefaultRoute
}

func isDefault(dst *net.IPNet) bool {
	ones, _ := dst.Mask.Size()
	return ones == 0 && dst.IP.IsUnspecified()
}

// ResolveGateway prefers configured, then the routing table, then fallback.
func ResolveGateway(configured, fallback string, r ports.GatewayResolver) string {
	if configured != "" {
		return configured
	}
	if r != nil {
		if gw, err := r.DefaultGateway(); err == nil && gw != "" {
			return gw
		}
	}
	return fallback
}

var (
	_ ports.CounterReader   = (*Interfaces)(nil)
	_ ports.GatewayResolver = (*Gateway)(nil)
)
