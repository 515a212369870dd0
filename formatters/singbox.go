package formatters

import (
	"encoding/json"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// SingboxFormatter emits a sing-box configuration document with one
// outbound per configuration, using the outbound schema's per-protocol
// field names (sing-box historically diverges from Clash's field naming,
// e.g. "uuid" vs "password" for VMess).
type SingboxFormatter struct{}

func (SingboxFormatter) Format() Format   { return FormatSingbox }
func (SingboxFormatter) FileName() string { return "singbox.json" }

type singboxTLS struct {
	Enabled    bool     `json:"enabled"`
	ServerName string   `json:"server_name,omitempty"`
	ALPN       []string `json:"alpn,omitempty"`
}

type singboxTransport struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
}

type singboxOutbound struct {
	Type       string            `json:"type"`
	Tag        string            `json:"tag"`
	Server     string            `json:"server"`
	ServerPort int               `json:"server_port"`
	UUID       string            `json:"uuid,omitempty"`
	Password   string            `json:"password,omitempty"`
	Username   string            `json:"username,omitempty"`
	Method     string            `json:"method,omitempty"`
	Flow       string            `json:"flow,omitempty"`
	TLS        *singboxTLS       `json:"tls,omitempty"`
	Transport  *singboxTransport `json:"transport,omitempty"`
}

type singboxDocument struct {
	Outbounds []singboxOutbound `json:"outbounds"`
}

// singboxType maps a canonical protocol to sing-box's outbound type name.
func singboxType(p models.Protocol) string {
	switch p {
	case models.ProtocolVMess:
		return "vmess"
	case models.ProtocolVLESS:
		return "vless"
	case models.ProtocolTrojan:
		return "trojan"
	case models.ProtocolShadowsocks, models.ProtocolSS2022:
		return "shadowsocks"
	case models.ProtocolShadowsocksR:
		return "shadowsocksr"
	case models.ProtocolHysteria2:
		return "hysteria2"
	case models.ProtocolTUIC:
		return "tuic"
	case models.ProtocolHTTP:
		return "http"
	case models.ProtocolSOCKS5:
		return "socks"
	default:
		return string(p)
	}
}

func (SingboxFormatter) Render(configs []*models.VPNConfiguration) ([]byte, error) {
	doc := singboxDocument{Outbounds: make([]singboxOutbound, 0, len(configs))}

	for i, cfg := range configs {
		ob := singboxOutbound{
			Type:       singboxType(cfg.Protocol),
			Tag:        proxyName(cfg, i),
			Server:     cfg.Server,
			ServerPort: cfg.Port,
			UUID:       cfg.UUID,
			Password:   cfg.Password,
			Username:   cfg.UserID,
			Method:     cfg.Encryption,
			Flow:       cfg.Flow,
		}
		if cfg.TLS {
			ob.TLS = &singboxTLS{Enabled: true, ServerName: cfg.SNI}
			if cfg.ALPN != "" {
				ob.TLS.ALPN = []string{cfg.ALPN}
			}
		}
		if cfg.Network == "ws" || cfg.Network == "grpc" {
			ob.Transport = &singboxTransport{Type: cfg.Network, Path: cfg.Path}
		}
		doc.Outbounds = append(doc.Outbounds, ob)
	}

	return json.MarshalIndent(doc, "", "  ")
}
