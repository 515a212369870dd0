package parsers

import (
	"net/url"
	"strconv"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// TrojanParser decodes "trojan://password@host:port[?...][#frag]" links.
type TrojanParser struct{ baseCounters }

// NewTrojanParser constructs a Trojan parser.
func NewTrojanParser() *TrojanParser { return &TrojanParser{} }

func (p *TrojanParser) Scheme() string { return "trojan" }

func (p *TrojanParser) Parse(line string) (*models.VPNConfiguration, bool) {
	u, err := url.Parse(line)
	if err != nil || u.User == nil || u.Hostname() == "" {
		p.recordError()
		return nil, false
	}
	password := u.User.Username()
	if password == "" {
		p.recordError()
		return nil, false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || !validPort(port) {
		p.recordError()
		return nil, false
	}

	q := u.Query()
	cfg := &models.VPNConfiguration{
		Protocol: models.ProtocolTrojan,
		Server:   u.Hostname(),
		Port:     port,
		Password: password,
		TLS:      true,
		SNI:      q.Get("sni"),
		Network:  orDefault(q.Get("type"), "tcp"),
	}
	cfg.SetMetadata("parser", "trojan")

	p.recordSuccess()
	return cfg, true
}
