package parsers

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// VMessParser decodes "vmess://base64(json)" links.
type VMessParser struct{ baseCounters }

// NewVMessParser constructs a VMess parser.
func NewVMessParser() *VMessParser { return &VMessParser{} }

func (p *VMessParser) Scheme() string { return "vmess" }

type vmessPayload struct {
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Net  string `json:"net"`
	Path string `json:"path"`
	Host string `json:"host"`
	TLS  string `json:"tls"`
	Scy  string `json:"scy"`
	Aid  string `json:"aid"`
}

func (p *VMessParser) Parse(line string) (*models.VPNConfiguration, bool) {
	body := strings.TrimPrefix(line, "vmess://")
	decoded, err := decodeBase64Any(body)
	if err != nil {
		p.recordError()
		return nil, false
	}

	var payload vmessPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		p.recordError()
		return nil, false
	}

	if payload.Add == "" || payload.Port == "" || payload.ID == "" {
		p.recordError()
		return nil, false
	}
	port, err := strconv.Atoi(payload.Port)
	if err != nil || !validPort(port) {
		p.recordError()
		return nil, false
	}

	cfg := &models.VPNConfiguration{
		Protocol:   models.ProtocolVMess,
		Server:     payload.Add,
		Port:       port,
		UUID:       payload.ID,
		Network:    orDefault(payload.Net, "tcp"),
		Path:       payload.Path,
		TLS:        payload.TLS == "tls",
		Encryption: payload.Scy,
	}
	if payload.Host != "" {
		cfg.SetMetadata("host", payload.Host)
	}
	if payload.Aid != "" {
		cfg.SetMetadata("alter_id", payload.Aid)
	}
	cfg.SetMetadata("parser", "vmess")

	p.recordSuccess()
	return cfg, true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// decodeBase64Any tries standard, then URL-safe, then raw (no padding)
// variants, matching the looseness real-world vmess links exhibit.
func decodeBase64Any(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.URLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
