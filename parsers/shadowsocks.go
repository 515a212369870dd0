package parsers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// ShadowsocksParser decodes both Shadowsocks URI forms:
// "ss://base64(method:password)@host:port[#tag]" and the fully-encoded
// "ss://base64(method:password@host:port)#tag".
type ShadowsocksParser struct{ baseCounters }

// NewShadowsocksParser constructs a Shadowsocks parser.
func NewShadowsocksParser() *ShadowsocksParser { return &ShadowsocksParser{} }

func (p *ShadowsocksParser) Scheme() string { return "ss" }

func (p *ShadowsocksParser) Parse(line string) (*models.VPNConfiguration, bool) {
	body := strings.TrimPrefix(line, "ss://")
	body = strings.SplitN(body, "#", 2)[0]

	if cfg, ok := p.parseUserInfoForm(body); ok {
		p.recordSuccess()
		return cfg, true
	}
	if cfg, ok := p.parseFullyEncodedForm(body); ok {
		p.recordSuccess()
		return cfg, true
	}
	p.recordError()
	return nil, false
}

// parseUserInfoForm handles base64(method:password)@host:port.
func (p *ShadowsocksParser) parseUserInfoForm(body string) (*models.VPNConfiguration, bool) {
	u, err := url.Parse("ss://" + body)
	if err != nil || u.User == nil || u.Hostname() == "" {
		return nil, false
	}
	decoded, err := decodeBase64Any(u.User.String())
	if err != nil {
		return nil, false
	}
	method, password, ok := splitMethodPassword(string(decoded))
	if !ok {
		return nil, false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || !validPort(port) {
		return nil, false
	}
	return &models.VPNConfiguration{
		Protocol:   models.ProtocolShadowsocks,
		Server:     u.Hostname(),
		Port:       port,
		Password:   password,
		Encryption: method,
	}, true
}

// parseFullyEncodedForm handles base64(method:password@host:port).
func (p *ShadowsocksParser) parseFullyEncodedForm(body string) (*models.VPNConfiguration, bool) {
	decoded, err := decodeBase64Any(body)
	if err != nil {
		return nil, false
	}
	inner := string(decoded)
	at := strings.LastIndex(inner, "@")
	if at < 0 {
		return nil, false
	}
	methodPassword, hostPort := inner[:at], inner[at+1:]
	method, password, ok := splitMethodPassword(methodPassword)
	if !ok {
		return nil, false
	}
	host, portStr, ok := strings.Cut(hostPort, ":")
	if !ok {
		return nil, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || !validPort(port) {
		return nil, false
	}
	return &models.VPNConfiguration{
		Protocol:   models.ProtocolShadowsocks,
		Server:     host,
		Port:       port,
		Password:   password,
		Encryption: method,
	}, true
}

func splitMethodPassword(s string) (method, password string, ok bool) {
	method, password, found := strings.Cut(s, ":")
	if !found || method == "" {
		return "", "", false
	}
	return method, password, true
}
