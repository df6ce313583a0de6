// ABOUTME: mDNS service discovery for framepace stats endpoints
// ABOUTME: Handles both advertisement (player side) and browsing (watcher side)
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	log "github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/framepace-go/internal/version"
)

const (
	// ServiceType is the mDNS service type of a stats endpoint.
	ServiceType = "_framepace._tcp"

	// StatsPath is advertised in the TXT record.
	StatsPath = "/stats"

	browseTimeout = 3 * time.Second
)

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	SessionID   string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	players chan *PlayerInfo
}

// PlayerInfo describes a discovered player
type PlayerInfo struct {
	Name      string
	Host      string
	Port      int
	Path      string
	SessionID string
	Version   string
}

// Addr returns host:port of the player.
func (p *PlayerInfo) Addr() string {
	return net.JoinHostPort(p.Host, fmt.Sprintf("%d", p.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		players: make(chan *PlayerInfo, 10),
	}
}

// TXTRecords returns the TXT records advertised for this player.
func (m *Manager) TXTRecords() []string {
	txt := []string{
		"path=" + StatsPath,
		"version=" + version.Version,
	}
	if m.config.SessionID != "" {
		txt = append(txt, "session="+m.config.SessionID)
	}
	return txt
}

// Advertise advertises this player's stats endpoint via mDNS
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.TXTRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Infof("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		_ = server.Shutdown()
	}()

	return nil
}

// Browse searches for framepace players
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop continuously browses for players
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				player := playerFromEntry(entry)
				if player == nil {
					continue
				}

				log.Infof("Discovered player: %s at %s", player.Name, player.Addr())

				select {
				case m.players <- player:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = browseTimeout
		params.Entries = entries
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			log.Debugf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done
	}
}

// playerFromEntry converts a service entry, ignoring entries without an
// IPv4 address.
func playerFromEntry(entry *mdns.ServiceEntry) *PlayerInfo {
	if entry.AddrV4 == nil {
		return nil
	}

	player := &PlayerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: StatsPath,
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			player.Path = value
		case "session":
			player.SessionID = value
		case "version":
			player.Version = value
		}
	}
	return player
}

// Players returns the channel of discovered players
func (m *Manager) Players() <-chan *PlayerInfo {
	return m.players
}

// Stop stops the discovery manager
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
