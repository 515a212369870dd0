package parsers

import (
	"strconv"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// ShadowsocksRParser decodes
// "ssr://base64(host:port:protocol:method:obfs:base64(password))" links.
type ShadowsocksRParser struct{ baseCounters }

// NewShadowsocksRParser constructs a ShadowsocksR parser.
func NewShadowsocksRParser() *ShadowsocksRParser { return &ShadowsocksRParser{} }

func (p *ShadowsocksRParser) Scheme() string { return "ssr" }

func (p *ShadowsocksRParser) Parse(line string) (*models.VPNConfiguration, bool) {
	body := strings.TrimPrefix(line, "ssr://")
	body = strings.SplitN(body, "#", 2)[0]

	decoded, err := decodeBase64Any(body)
	if err != nil {
		p.recordError()
		return nil, false
	}

	parts := strings.SplitN(string(decoded), ":", 6)
	if len(parts) != 6 {
		p.recordError()
		return nil, false
	}
	host, portStr, protocol, method, obfs, encodedPassword := parts[0], parts[1], parts[2], parts[3], parts[4], parts[5]

	port, err := strconv.Atoi(portStr)
	if err != nil || !validPort(port) {
		p.recordError()
		return nil, false
	}

	passwordBytes, err := decodeBase64Any(encodedPassword)
	if err != nil {
		p.recordError()
		return nil, false
	}

	cfg := &models.VPNConfiguration{
		Protocol:   models.ProtocolShadowsocksR,
		Server:     host,
		Port:       port,
		Password:   string(passwordBytes),
		Encryption: method,
	}
	cfg.SetMetadata("protocol_plugin", protocol)
	cfg.SetMetadata("obfs", obfs)
	cfg.SetMetadata("parser", "ssr")

	p.recordSuccess()
	return cfg, true
}
