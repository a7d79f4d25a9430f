// ABOUTME: mDNS service discovery for netjam servers
// ABOUTME: Servers advertise their listening port; transmitters browse for one
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the DNS-SD type netjam servers register under
const ServiceType = "_netjam._udp"

const queryTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	InstanceName string
	Port         int
	ServerID     string
	Capacity     int
	Version      string
	Logger       *logrus.Entry
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     *logrus.Entry
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name     string
	Host     string
	Port     int
	ServerID string
	Capacity int
}

// Addr returns host:port of the server's handshake listener
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Manager{
		config:  config,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// txtRecords encodes the advertised metadata
func (m *Manager) txtRecords() []string {
	txt := []string{"server_id=" + m.config.ServerID}
	if m.config.Capacity > 0 {
		txt = append(txt, "capacity="+strconv.Itoa(m.config.Capacity))
	}
	if m.config.Version != "" {
		txt = append(txt, "version="+m.config.Version)
	}
	return txt
}

// Advertise registers this server until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.InstanceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"instance": m.config.InstanceName,
		"port":     m.config.Port,
		"type":     ServiceType,
	}).Info("Advertising mDNS service")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for servers until Stop; results arrive on Servers
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		forwarded := make(chan struct{})

		go func() {
			defer close(forwarded)
			for entry := range entries {
				server := entryToServer(entry)
				if server == nil {
					continue
				}
				m.log.WithFields(logrus.Fields{
					"name": server.Name,
					"addr": server.Addr(),
				}).Debug("Discovered server")

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: queryTimeout,
			Entries: entries,
		}

		if err := mdns.Query(params); err != nil {
			m.log.WithError(err).Debug("mDNS query failed")
		}
		close(entries)
		<-forwarded
	}
}

func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}
	fields := parseTXT(entry.InfoFields)
	capacity, _ := strconv.Atoi(fields["capacity"])
	return &ServerInfo{
		Name:     strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host:     entry.AddrV4.String(),
		Port:     entry.Port,
		ServerID: fields["server_id"],
		Capacity: capacity,
	}
}

// parseTXT splits key=value TXT strings; keys without a value map to ""
func parseTXT(records []string) map[string]string {
	fields := make(map[string]string, len(records))
	for _, rec := range records {
		key, value, _ := strings.Cut(rec, "=")
		if key != "" {
			fields[key] = value
		}
	}
	return fields
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Discover browses until the first server shows up, timeout passes or ctx ends
func Discover(ctx context.Context, timeout time.Duration, log *logrus.Entry) (*ServerInfo, error) {
	m := NewManager(Config{Logger: log})
	defer m.Stop()

	if err := m.Browse(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case server := <-m.Servers():
		return server, nil
	case <-timer.C:
		return nil, fmt.Errorf("no %s server found within %s", ServiceType, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
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
