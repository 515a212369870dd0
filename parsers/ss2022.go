package parsers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// SS2022Parser decodes the Shadowsocks-2022 AEAD variant:
// "ss://2022-<cipher>:password@host:port[?plugin=...]". Unlike classic
// Shadowsocks, the userinfo here is cleartext rather than base64, which is
// how this parser disambiguates itself from ShadowsocksParser without
// consuming its error counter on an ordinary ss:// link.
type SS2022Parser struct{ baseCounters }

// NewSS2022Parser constructs a Shadowsocks-2022 parser.
func NewSS2022Parser() *SS2022Parser { return &SS2022Parser{} }

func (p *SS2022Parser) Scheme() string { return "ss" }

func (p *SS2022Parser) Parse(line string) (*models.VPNConfiguration, bool) {
	u, err := url.Parse(line)
	if err != nil || u.User == nil {
		return nil, false
	}
	cipher := u.User.Username()
	if !strings.HasPrefix(cipher, "2022-") {
		// Not a 2022 link; leave it for ShadowsocksParser without
		// recording an attempt.
		return nil, false
	}
	password, _ := u.User.Password()
	if u.Hostname() == "" {
		p.recordError()
		return nil, false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || !validPort(port) {
		p.recordError()
		return nil, false
	}

	cfg := &models.VPNConfiguration{
		Protocol:   models.ProtocolSS2022,
		Server:     u.Hostname(),
		Port:       port,
		Password:   password,
		Encryption: cipher,
	}
	cfg.SetMetadata("parser", "ss2022")
	cfg.SetMetadata("aead_support", "true")
	cfg.SetMetadata("security_level", ss2022SecurityLevel(cipher))
	if plugin := u.Query().Get("plugin"); plugin != "" {
		cfg.SetMetadata("plugin", plugin)
	}

	p.recordSuccess()
	return cfg, true
}

// ss2022SecurityLevel classifies the AEAD cipher strength per spec §4.3:
// high for aes-256-gcm/chacha20 variants, medium for aes-128-gcm, standard
// otherwise.
func ss2022SecurityLevel(cipher string) string {
	lower := strings.ToLower(cipher)
	switch {
	case strings.Contains(lower, "aes-256-gcm"), strings.Contains(lower, "chacha20"):
		return "high"
	case strings.Contains(lower, "aes-128-gcm"):
		return "medium"
	default:
		return "standard"
	}
}
