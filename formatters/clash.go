package formatters

import (
	"gopkg.in/yaml.v3"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// ClashFormatter emits a Clash-compatible YAML document with `proxies`, a
// `proxy-groups` auto-select group over every proxy name, and a pass-through
// rule set, using gopkg.in/yaml.v3 the way config.Load parses sources.yaml.
type ClashFormatter struct{}

func (ClashFormatter) Format() Format   { return FormatClash }
func (ClashFormatter) FileName() string { return "clash.yaml" }

// clashProxy mirrors the subset of Clash's proxy schema this module can
// populate from a VPNConfiguration; fields are omitted when empty so the
// YAML stays readable per-protocol.
type clashProxy struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Server   string `yaml:"server"`
	Port     int    `yaml:"port"`
	UUID     string `yaml:"uuid,omitempty"`
	Password string `yaml:"password,omitempty"`
	Cipher   string `yaml:"cipher,omitempty"`
	Network  string `yaml:"network,omitempty"`
	TLS      bool   `yaml:"tls,omitempty"`
	SNI      string `yaml:"sni,omitempty"`
	ALPN     []string `yaml:"alpn,omitempty"`
	Flow     string `yaml:"flow,omitempty"`
	WSOpts   *wsOpts `yaml:"ws-opts,omitempty"`
}

type wsOpts struct {
	Path    string            `yaml:"path,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type clashProxyGroup struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Proxies []string `yaml:"proxies"`
}

type clashDocument struct {
	Proxies      []clashProxy      `yaml:"proxies"`
	ProxyGroups  []clashProxyGroup `yaml:"proxy-groups"`
	Rules        []string          `yaml:"rules"`
}

// clashType maps a canonical protocol to the type string Clash's config
// schema expects; protocols Clash does not support natively (ShadowsocksR,
// HTTP/SOCKS5 proxies, Hysteria2/TUIC in older Clash cores) still emit a
// best-effort entry rather than being silently dropped, since this module
// targets clash-meta-compatible cores that do support them.
func clashType(p models.Protocol) string {
	switch p {
	case models.ProtocolVMess:
		return "vmess"
	case models.ProtocolVLESS:
		return "vless"
	case models.ProtocolTrojan:
		return "trojan"
	case models.ProtocolShadowsocks, models.ProtocolSS2022:
		return "ss"
	case models.ProtocolShadowsocksR:
		return "ssr"
	case models.ProtocolHysteria2:
		return "hysteria2"
	case models.ProtocolTUIC:
		return "tuic"
	case models.ProtocolHTTP:
		return "http"
	case models.ProtocolSOCKS5:
		return "socks5"
	default:
		return string(p)
	}
}

func (ClashFormatter) Render(configs []*models.VPNConfiguration) ([]byte, error) {
	doc := clashDocument{Rules: []string{"MATCH,⚡ Auto-Select"}}
	names := make([]string, 0, len(configs))

	for i, cfg := range configs {
		name := proxyName(cfg, i)
		names = append(names, name)

		proxy := clashProxy{
			Name:     name,
			Type:     clashType(cfg.Protocol),
			Server:   cfg.Server,
			Port:     cfg.Port,
			UUID:     cfg.UUID,
			Password: cfg.Password,
			Cipher:   cfg.Encryption,
			Network:  cfg.Network,
			TLS:      cfg.TLS,
			SNI:      cfg.SNI,
			Flow:     cfg.Flow,
		}
		if cfg.ALPN != "" {
			proxy.ALPN = []string{cfg.ALPN}
		}
		if cfg.Network == "ws" && cfg.Path != "" {
			proxy.WSOpts = &wsOpts{Path: cfg.Path}
			if host, ok := cfg.GetMetadata("host"); ok {
				proxy.WSOpts.Headers = map[string]string{"Host": host}
			}
		}
		doc.Proxies = append(doc.Proxies, proxy)
	}

	doc.ProxyGroups = []clashProxyGroup{
		{Name: "⚡ Auto-Select", Type: "url-test", Proxies: names},
	}

	return yaml.Marshal(doc)
}
