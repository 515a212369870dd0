package formatters

import (
	"encoding/json"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// JSONFormatter emits a structured dump of the full canonical model.
type JSONFormatter struct{}

func (JSONFormatter) Format() Format   { return FormatJSON }
func (JSONFormatter) FileName() string { return "configs.json" }

// jsonDocument is the structured dump written by the json formatter:
// configurations plus a small summary header, so downstream tooling does
// not need to recompute counts from the array length.
type jsonDocument struct {
	Total   int                         `json:"total"`
	Configs []*models.VPNConfiguration  `json:"configurations"`
}

func (JSONFormatter) Render(configs []*models.VPNConfiguration) ([]byte, error) {
	if configs == nil {
		configs = []*models.VPNConfiguration{}
	}
	doc := jsonDocument{Total: len(configs), Configs: configs}
	return json.MarshalIndent(doc, "", "  ")
}
