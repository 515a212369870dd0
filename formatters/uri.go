// ToURI reconstructs the original subscription-line form of a
// configuration, the inverse of the parser bank's dispatch-by-scheme
// decoding. Used by the raw/base64 formatters and exercised by the
// round-trip law in spec §8: parse(emit_raw(cfg)) == cfg modulo metadata
// fields not present in the URI.
package formatters

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// ToURI renders cfg back into its canonical wire-format URI. Protocols
// without a stable canonical URI form in the wild (HTTP/SOCKS5 proxies are
// usually distributed as host:port pairs, not URIs) still get one, for
// round-trip consistency with this module's own parser.
func ToURI(cfg *models.VPNConfiguration) string {
	switch cfg.Protocol {
	case models.ProtocolVMess:
		return vmessURI(cfg)
	case models.ProtocolVLESS:
		return vlessURI(cfg)
	case models.ProtocolTrojan:
		return trojanURI(cfg)
	case models.ProtocolShadowsocks:
		return shadowsocksURI(cfg)
	case models.ProtocolSS2022:
		return ss2022URI(cfg)
	case models.ProtocolShadowsocksR:
		return shadowsocksrURI(cfg)
	case models.ProtocolHysteria2, models.ProtocolTUIC:
		return quicStyleURI(cfg)
	case models.ProtocolHTTP, models.ProtocolSOCKS5:
		return httpSocksURI(cfg)
	default:
		return ""
	}
}

func vmessURI(cfg *models.VPNConfiguration) string {
	payload := map[string]string{
		"add":  cfg.Server,
		"port": strconv.Itoa(cfg.Port),
		"id":   cfg.UUID,
		"net":  cfg.Network,
		"path": cfg.Path,
		"scy":  cfg.Encryption,
	}
	if cfg.TLS {
		payload["tls"] = "tls"
	}
	if host, ok := cfg.GetMetadata("host"); ok {
		payload["host"] = host
	}
	if aid, ok := cfg.GetMetadata("alter_id"); ok {
		payload["aid"] = aid
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return "vmess://" + base64.StdEncoding.EncodeToString(data)
}

func vlessURI(cfg *models.VPNConfiguration) string {
	u := &url.URL{
		Scheme: "vless",
		User:   url.User(cfg.UUID),
		Host:   fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
	}
	q := url.Values{}
	security := "tcp"
	if sec, ok := cfg.GetMetadata("security"); ok {
		security = sec
	} else if cfg.TLS {
		security = "tls"
	}
	q.Set("security", security)
	if cfg.Network != "" {
		q.Set("type", cfg.Network)
	}
	setIfNonEmpty(q, "path", cfg.Path)
	setIfNonEmpty(q, "sni", cfg.SNI)
	setIfNonEmpty(q, "flow", cfg.Flow)
	setIfNonEmpty(q, "alpn", cfg.ALPN)
	if host, ok := cfg.GetMetadata("host"); ok {
		q.Set("host", host)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func trojanURI(cfg *models.VPNConfiguration) string {
	u := &url.URL{
		Scheme: "trojan",
		User:   url.User(cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
	}
	q := url.Values{}
	setIfNonEmpty(q, "sni", cfg.SNI)
	if cfg.Network != "" {
		q.Set("type", cfg.Network)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func shadowsocksURI(cfg *models.VPNConfiguration) string {
	userInfo := base64.StdEncoding.EncodeToString([]byte(cfg.Encryption + ":" + cfg.Password))
	return fmt.Sprintf("ss://%s@%s:%d", userInfo, cfg.Server, cfg.Port)
}

func ss2022URI(cfg *models.VPNConfiguration) string {
	u := &url.URL{
		Scheme: "ss",
		User:   url.UserPassword(cfg.Encryption, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
	}
	if plugin, ok := cfg.GetMetadata("plugin"); ok {
		q := url.Values{}
		q.Set("plugin", plugin)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func shadowsocksrURI(cfg *models.VPNConfiguration) string {
	protocolPlugin, _ := cfg.GetMetadata("protocol_plugin")
	obfs, _ := cfg.GetMetadata("obfs")
	encodedPassword := base64.StdEncoding.EncodeToString([]byte(cfg.Password))
	body := fmt.Sprintf("%s:%d:%s:%s:%s:%s", cfg.Server, cfg.Port, protocolPlugin, cfg.Encryption, obfs, encodedPassword)
	return "ssr://" + base64.StdEncoding.EncodeToString([]byte(body))
}

func quicStyleURI(cfg *models.VPNConfiguration) string {
	u := &url.URL{Scheme: string(cfg.Protocol), Host: fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.UUID, cfg.Password)
	} else if cfg.UUID != "" {
		u.User = url.User(cfg.UUID)
	}
	q := url.Values{}
	setIfNonEmpty(q, "alpn", cfg.ALPN)
	if cc, ok := cfg.GetMetadata("congestion_control"); ok {
		q.Set("congestion_control", cc)
	}
	if relay, ok := cfg.GetMetadata("udp_relay_mode"); ok {
		q.Set("udp_relay_mode", relay)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func httpSocksURI(cfg *models.VPNConfiguration) string {
	u := &url.URL{Scheme: string(cfg.Protocol), Host: fmt.Sprintf("%s:%d", cfg.Server, cfg.Port)}
	if cfg.UserID != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.UserID, cfg.Password)
		} else {
			u.User = url.User(cfg.UserID)
		}
	}
	return u.String()
}

func setIfNonEmpty(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
