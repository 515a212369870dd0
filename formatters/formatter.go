// Package formatters implements the output-generation stage of the
// pipeline (spec §4.5): one emitter per client-facing format, each mapping
// []VPNConfiguration to bytes written under output_dir.
//
// Structured as a small Formatter interface plus a registry, the same
// dispatch-by-name shape the parser bank uses for scheme dispatch
// (parsers/parser.go), rather than a switch statement duplicated at every
// call site.
package formatters

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// Format names a supported output format.
type Format string

const (
	FormatRaw     Format = "raw"
	FormatBase64  Format = "base64"
	FormatJSON    Format = "json"
	FormatClash   Format = "clash"
	FormatSingbox Format = "singbox"
	FormatCSV     Format = "csv"
)

// Formatter renders a set of configurations to bytes for one output format.
type Formatter interface {
	Format() Format
	FileName() string
	Render(configs []*models.VPNConfiguration) ([]byte, error)
}

var registry = map[Format]Formatter{
	FormatRaw:     RawFormatter{},
	FormatBase64:  Base64Formatter{},
	FormatJSON:    JSONFormatter{},
	FormatClash:   ClashFormatter{},
	FormatSingbox: SingboxFormatter{},
	FormatCSV:     CSVFormatter{},
}

// UnsupportedFormatsError reports every requested format name this registry
// does not recognize, matching the literal wording the spec's end-to-end
// scenario 6 requires: "Unsupported formats: …".
type UnsupportedFormatsError struct {
	Names []string
}

func (e *UnsupportedFormatsError) Error() string {
	return fmt.Sprintf("Unsupported formats: %s", strings.Join(e.Names, ", "))
}

// Validate checks that every name in formats is a known format, returning
// an UnsupportedFormatsError naming all unknown ones at once rather than
// failing on the first.
func Validate(formats []string) error {
	var unknown []string
	for _, name := range formats {
		if _, ok := registry[Format(name)]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return &UnsupportedFormatsError{Names: unknown}
	}
	return nil
}

// WriteAll renders configs in every requested format and writes each to
// outputDir, returning a map of format name to the path written. Formats
// are validated up front: an unsupported format name fails the entire call
// before anything is written (spec §4.5, §8 scenario 6).
func WriteAll(outputDir string, formats []string, configs []*models.VPNConfiguration) (map[string]string, error) {
	if err := Validate(formats); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir %s: %w", outputDir, err)
	}

	sorted := make([]*models.VPNConfiguration, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].QualityScore > sorted[j].QualityScore })

	out := make(map[string]string, len(formats))
	for _, name := range formats {
		f := registry[Format(name)]
		data, err := f.Render(sorted)
		if err != nil {
			return nil, fmt.Errorf("rendering format %q: %w", name, err)
		}
		path := filepath.Join(outputDir, f.FileName())
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		out[name] = path
	}
	return out, nil
}

// proxyName builds a stable, human-readable display name for a
// configuration, used by the clash and singbox emitters as the proxy/
// outbound tag.
func proxyName(cfg *models.VPNConfiguration, index int) string {
	return fmt.Sprintf("%s-%s-%d", cfg.Protocol, cfg.Server, index)
}
