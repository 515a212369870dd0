package parsers

import (
	"net/url"
	"strconv"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// HTTPSocksParser decodes "scheme://[user:pass@]host:port" proxy links for
// the plain HTTP and SOCKS5 protocols, which share the same shape and
// differ only in scheme and resulting Protocol value.
type HTTPSocksParser struct {
	baseCounters
	scheme   string
	protocol models.Protocol
}

// NewHTTPSocksParser constructs a parser for the given scheme ("http" or
// "socks5") and the canonical protocol it produces.
func NewHTTPSocksParser(scheme string, protocol models.Protocol) *HTTPSocksParser {
	return &HTTPSocksParser{scheme: scheme, protocol: protocol}
}

func (p *HTTPSocksParser) Scheme() string { return p.scheme }

func (p *HTTPSocksParser) Parse(line string) (*models.VPNConfiguration, bool) {
	u, err := url.Parse(line)
	if err != nil || u.Hostname() == "" {
		p.recordError()
		return nil, false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || !validPort(port) {
		p.recordError()
		return nil, false
	}

	cfg := &models.VPNConfiguration{
		Protocol: p.protocol,
		Server:   u.Hostname(),
		Port:     port,
		Network:  "tcp",
	}
	if u.User != nil {
		cfg.UserID = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}
	cfg.SetMetadata("parser", p.scheme)

	p.recordSuccess()
	return cfg, true
}
