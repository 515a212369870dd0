package formatters

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// CSVFormatter emits "name,protocol,server,port,quality_score,source_url"
// with one row per configuration, using encoding/csv for correct quoting.
type CSVFormatter struct{}

func (CSVFormatter) Format() Format   { return FormatCSV }
func (CSVFormatter) FileName() string { return "configs.csv" }

func (CSVFormatter) Render(configs []*models.VPNConfiguration) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"name", "protocol", "server", "port", "quality_score", "source_url"}); err != nil {
		return nil, err
	}
	for i, cfg := range configs {
		row := []string{
			proxyName(cfg, i),
			string(cfg.Protocol),
			cfg.Server,
			strconv.Itoa(cfg.Port),
			strconv.FormatFloat(cfg.QualityScore, 'f', 4, 64),
			cfg.SourceURL,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
