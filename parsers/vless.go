package parsers

import (
	"net/url"
	"strconv"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// VLESSParser decodes "vless://uuid@host:port?query#fragment" links.
type VLESSParser struct{ baseCounters }

// NewVLESSParser constructs a VLESS parser.
func NewVLESSParser() *VLESSParser { return &VLESSParser{} }

func (p *VLESSParser) Scheme() string { return "vless" }

func (p *VLESSParser) Parse(line string) (*models.VPNConfiguration, bool) {
	u, err := url.Parse(line)
	if err != nil || u.User == nil || u.Hostname() == "" {
		p.recordError()
		return nil, false
	}
	uuid := u.User.Username()
	if uuid == "" {
		p.recordError()
		return nil, false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || !validPort(port) {
		p.recordError()
		return nil, false
	}

	q := u.Query()
	security := q.Get("security")
	if security == "" {
		security = "tls"
	}
	network := q.Get("type")
	if network == "" {
		network = "tcp"
	}

	cfg := &models.VPNConfiguration{
		Protocol: models.ProtocolVLESS,
		Server:   u.Hostname(),
		Port:     port,
		UUID:     uuid,
		Network:  network,
		Path:     q.Get("path"),
		TLS:      security == "tls" || security == "reality",
		SNI:      q.Get("sni"),
		ALPN:     q.Get("alpn"),
		Flow:     q.Get("flow"),
	}
	if host := q.Get("host"); host != "" {
		cfg.SetMetadata("host", host)
	}
	cfg.SetMetadata("security", security)
	cfg.SetMetadata("parser", "vless")

	p.recordSuccess()
	return cfg, true
}
