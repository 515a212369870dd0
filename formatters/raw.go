package formatters

import (
	"bytes"
	"encoding/base64"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// RawFormatter emits one subscription URI per line, preserving original
// scheme.
type RawFormatter struct{}

func (RawFormatter) Format() Format     { return FormatRaw }
func (RawFormatter) FileName() string   { return "raw.txt" }

func (RawFormatter) Render(configs []*models.VPNConfiguration) ([]byte, error) {
	var buf bytes.Buffer
	for _, cfg := range configs {
		uri := ToURI(cfg)
		if uri == "" {
			continue
		}
		buf.WriteString(uri)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Base64Formatter emits the base64 encoding of the raw file's contents, the
// common "subscription link" distribution form.
type Base64Formatter struct{}

func (Base64Formatter) Format() Format   { return FormatBase64 }
func (Base64Formatter) FileName() string { return "subscription.txt" }

func (Base64Formatter) Render(configs []*models.VPNConfiguration) ([]byte, error) {
	raw, err := (RawFormatter{}).Render(configs)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return []byte(encoded), nil
}
