// Package discovery advertises the editor server on the local network over
// mDNS and finds other instances.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type of the editor.
const ServiceType = "_pixeleditor._tcp"

// Peer is a server found on the LAN.
type Peer struct {
	Instance string
	Addr     string
}

// NewService builds the mDNS zone for an instance listening on port. An empty
// instance uses the hostname.
func NewService(instance string, port int) (*mdns.MDNSService, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, []string{"pixeleditor"})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Advertise starts answering mDNS queries for the instance. The returned
// function stops the responder.
func Advertise(instance string, port int) (func() error, error) {
	service, err := NewService(instance, port)
	if err != nil {
		return nil, err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server.Shutdown, nil
}

// Browse queries the LAN for editor servers until ctx is done or timeout
// elapses, whichever comes first.
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	params := mdns.DefaultParams(ServiceType)
	params.Timeout = timeout
	params.DisableIPv6 = true
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, ctx.Err()
		}
		if left < timeout {
			params.Timeout = left
		}
	}

	entries := make(chan *mdns.ServiceEntry, 8)
	params.Entries = entries
	var peers []Peer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if p, ok := peerFromEntry(e); ok {
				peers = append(peers, p)
			}
		}
	}()
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("mDNS query: %w", err)
	}
	return peers, nil
}

func peerFromEntry(e *mdns.ServiceEntry) (Peer, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Peer{}, false
	}
	return Peer{
		Instance: e.Name,
		Addr:     net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port)),
	}, true
}
