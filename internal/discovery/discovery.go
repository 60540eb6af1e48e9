// Package discovery enumerates networked hardware controllers belonging
// to the stack. Enumeration is best-effort and time-bounded: callers pass
// a context with a deadline, and a timeout degrades to an empty result.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// DefaultService is the mDNS service type brewing controllers announce.
	DefaultService = "_brewctl._tcp"
	// DefaultDomain is the mDNS browse domain.
	DefaultDomain = "local."
)

// Device is one discovered controller. Ephemeral: produced per
// enumeration, never persisted directly.
type Device struct {
	Address      string
	Identity     string
	Capabilities []string
}

// Discoverer enumerates controllers on the network.
type Discoverer interface {
	Enumerate(ctx context.Context) ([]Device, error)
}

// MDNS discovers controllers via multicast DNS.
type MDNS struct {
	Service string
	Domain  string
	Log     *zap.Logger
}

// NewMDNS returns a discoverer browsing the default brewctl service type.
func NewMDNS(log *zap.Logger) *MDNS {
	if log == nil {
		log = zap.NewNop()
	}
	return &MDNS{Service: DefaultService, Domain: DefaultDomain, Log: log}
}

// Enumerate browses until the context deadline and returns every
// controller seen. Hitting the deadline is the normal exit, not an error.
func (m *MDNS) Enumerate(ctx context.Context) ([]Device, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("discovery requires a context with a deadline")
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Device, 1)
	go func() {
		var devices []Device
		for entry := range entries {
			d := Device{Identity: entry.Instance}
			if len(entry.AddrIPv4) > 0 {
				d.Address = entry.AddrIPv4[0].String()
			}
			d.Capabilities = append(d.Capabilities, entry.Text...)
			devices = append(devices, d)
			m.Log.Debug("controller discovered",
				zap.String("identity", d.Identity),
				zap.String("address", d.Address))
		}
		done <- devices
	}()

	if err := resolver.Browse(ctx, m.Service, m.Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-ctx.Done()
	devices := <-done
	sort.Slice(devices, func(i, j int) bool { return devices[i].Identity < devices[j].Identity })
	return devices, nil
}
