// Package parsers decodes raw subscription lines into canonical
// VPNConfiguration records, dispatching by URI scheme.
//
// Structured the way the teacher structures pluggable eviction policies in
// cache-manager/policies.go: a small interface plus a registry, rather than
// a type switch. Each parser keeps its own parse/error counters, generalizing
// the teacher's atomic.Int64 Metrics idiom from cache-manager/service.go.
package parsers

import (
	"strings"
	"sync/atomic"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// Parser decodes one raw line into a VPNConfiguration. Returns (nil, false)
// for a line this parser recognizes by scheme but cannot otherwise decode;
// malformed input is never fatal to the batch.
type Parser interface {
	Scheme() string
	Parse(line string) (*models.VPNConfiguration, bool)
	Counters() (parseCount, errorCount int64)
}

// baseCounters is embedded by every parser implementation for the shared
// atomic parse_count/error_count pair.
type baseCounters struct {
	parseCount atomic.Int64
	errorCount atomic.Int64
}

func (b *baseCounters) Counters() (int64, int64) {
	return b.parseCount.Load(), b.errorCount.Load()
}

func (b *baseCounters) recordSuccess() { b.parseCount.Add(1) }
func (b *baseCounters) recordError()   { b.parseCount.Add(1); b.errorCount.Add(1) }

// OnParseError, if set, is called whenever a line's scheme is recognized
// but every candidate parser for it fails to decode the line. Wired by
// main to monitoring.RecordParserError; a direct callback rather than a
// pub/sub topic since parsers has no Encore service of its own to publish
// from, following the fetchAll/reputationOf closure-wiring idiom used
// elsewhere to avoid import cycles.
var OnParseError func(scheme string)

// Registry dispatches a raw line to the parser(s) matching its scheme
// prefix. "ss://" is ambiguous between plain Shadowsocks and the
// Shadowsocks-2022 AEAD variant, so a scheme may have more than one
// candidate parser, tried in registration order.
type Registry struct {
	parsers  map[string][]Parser
	ordered  []Parser
}

// NewRegistry builds a registry pre-populated with every built-in parser.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string][]Parser)}
	for _, p := range []Parser{
		NewVMessParser(),
		NewVLESSParser(),
		NewTrojanParser(),
		NewSS2022Parser(),
		NewShadowsocksParser(),
		NewShadowsocksRParser(),
		NewHysteria2Parser(),
		NewTUICParser(),
		NewHTTPSocksParser("http", models.ProtocolHTTP),
		NewHTTPSocksParser("socks5", models.ProtocolSOCKS5),
	} {
		r.parsers[p.Scheme()] = append(r.parsers[p.Scheme()], p)
		r.ordered = append(r.ordered, p)
	}
	return r
}

// Parse dispatches line to the parser(s) matching its "scheme://" prefix,
// trying each candidate in order until one succeeds. Returns (nil, false)
// if no parser recognizes the scheme or every candidate fails to decode.
func (r *Registry) Parse(line string) (*models.VPNConfiguration, bool) {
	scheme := schemeOf(line)
	if scheme == "" {
		return nil, false
	}
	candidates := r.parsers[scheme]
	if len(candidates) == 0 {
		return nil, false
	}
	for _, p := range candidates {
		if cfg, ok := p.Parse(line); ok {
			return cfg, true
		}
	}
	if OnParseError != nil {
		OnParseError(scheme)
	}
	return nil, false
}

// Parsers returns every registered parser, for counter reporting.
func (r *Registry) Parsers() []Parser {
	return r.ordered
}

func schemeOf(line string) string {
	idx := strings.Index(line, "://")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(line[:idx])
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}
