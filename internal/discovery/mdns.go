// ABOUTME: Optional mDNS discovery of the Tsukimi session server
// ABOUTME: Used as a config fallback when --grpc-addr is left unset
package discovery

import (
	"context"
	"fmt"
	"log"

	"github.com/hashicorp/mdns"
)

const (
	serviceType   = "_tsukimi._tcp"
	queryTimeout  = 3
	queryDomain   = "local"
	entriesBuffer = 10
)

// Config holds discovery configuration.
type Config struct {
	// BrowseTimeoutSeconds bounds how long a single mDNS query waits
	// for responses before giving up.
	BrowseTimeoutSeconds int
}

// Manager browses for the Tsukimi session server on the local
// network. A node is always a discovery client; it never advertises
// itself.
type Manager struct {
	config Config
	ctx    context.Context
	cancel context.CancelFunc
}

// ServerInfo describes a discovered session server.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	if config.BrowseTimeoutSeconds <= 0 {
		config.BrowseTimeoutSeconds = queryTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{config: config, ctx: ctx, cancel: cancel}
}

// FindServer runs one mDNS query and returns the first responder, or
// an error if none answered within the configured timeout.
func (m *Manager) FindServer() (*ServerInfo, error) {
	entries := make(chan *mdns.ServiceEntry, entriesBuffer)

	params := &mdns.QueryParam{
		Service: serviceType,
		Domain:  queryDomain,
		Timeout: m.config.BrowseTimeoutSeconds,
		Entries: entries,
	}

	go func() {
		if err := mdns.Query(params); err != nil {
			log.Printf("discovery: mdns query failed: %v", err)
		}
		close(entries)
	}()

	for entry := range entries {
		host := ""
		if entry.AddrV4 != nil {
			host = entry.AddrV4.String()
		} else if entry.Addr != nil {
			host = entry.Addr.String()
		}
		return &ServerInfo{Name: entry.Name, Host: host, Port: entry.Port}, nil
	}

	return nil, fmt.Errorf("discovery: no %s responders within %ds", serviceType, m.config.BrowseTimeoutSeconds)
}

// Stop releases the manager's context.
func (m *Manager) Stop() {
	m.cancel()
}
