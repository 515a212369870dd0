package parsers

import (
	"net/url"
	"strconv"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// Hysteria2Parser decodes "hysteria2://[uuid[:password]@]host:port?params"
// links. Real-world Hysteria2 subscription links vary in which query
// parameters they include; unrecognized ones are preserved as metadata
// instead of rejecting the link, per the open question in §9.
type Hysteria2Parser struct{ baseCounters }

// NewHysteria2Parser constructs a Hysteria2 parser.
func NewHysteria2Parser() *Hysteria2Parser { return &Hysteria2Parser{} }

func (p *Hysteria2Parser) Scheme() string { return "hysteria2" }

func (p *Hysteria2Parser) Parse(line string) (*models.VPNConfiguration, bool) {
	cfg, ok := parseQUICStyleURI(line, models.ProtocolHysteria2)
	if !ok {
		p.recordError()
		return nil, false
	}
	p.recordSuccess()
	return cfg, true
}

// parseQUICStyleURI is shared by Hysteria2 and TUIC: both are
// "<scheme>://[uuid[:password]@]host:port?params" with congestion_control,
// udp_relay_mode and alpn recognized, anything else kept verbatim.
func parseQUICStyleURI(line string, protocol models.Protocol) (*models.VPNConfiguration, bool) {
	u, err := url.Parse(line)
	if err != nil || u.Hostname() == "" {
		return nil, false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || !validPort(port) {
		return nil, false
	}

	cfg := &models.VPNConfiguration{
		Protocol: protocol,
		Server:   u.Hostname(),
		Port:     port,
		TLS:      true,
	}
	if u.User != nil {
		cfg.UUID = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}

	q := u.Query()
	cfg.ALPN = q.Get("alpn")
	if cc := q.Get("congestion_control"); cc != "" {
		cfg.SetMetadata("congestion_control", cc)
	}
	if relay := q.Get("udp_relay_mode"); relay != "" {
		cfg.SetMetadata("udp_relay_mode", relay)
	}
	for key, values := range q {
		switch key {
		case "alpn", "congestion_control", "udp_relay_mode":
			continue
		}
		if len(values) > 0 {
			cfg.SetMetadata(key, values[0])
		}
	}
	cfg.SetMetadata("parser", string(protocol))

	return cfg, true
}
