package parsers

import "github.com/vpnmerger/aggregator/pkg/models"

// TUICParser decodes "tuic://[uuid[:password]@]host:port?params" links,
// sharing the QUIC-style URI shape with Hysteria2.
type TUICParser struct{ baseCounters }

// NewTUICParser constructs a TUIC parser.
func NewTUICParser() *TUICParser { return &TUICParser{} }

func (p *TUICParser) Scheme() string { return "tuic" }

func (p *TUICParser) Parse(line string) (*models.VPNConfiguration, bool) {
	cfg, ok := parseQUICStyleURI(line, models.ProtocolTUIC)
	if !ok {
		p.recordError()
		return nil, false
	}
	p.recordSuccess()
	return cfg, true
}
