// Initial quality scoring from spec §4.4: source reputation, protocol
// rank, and parser annotations (AEAD support, TLS). Grounded on the
// teacher's cache eviction scoring shape in cache-manager/policies.go,
// generalized from "should this entry be evicted" to "how good is this
// configuration", still a pure function of observable fields.
package processor

import "github.com/vpnmerger/aggregator/pkg/models"

// protocolRank orders protocols by inherent quality: VLESS (Reality-capable)
// and TUIC/Hysteria2 (modern QUIC transports) rank highest, legacy
// Shadowsocks/ShadowsocksR lowest.
var protocolRank = map[models.Protocol]float64{
	models.ProtocolVLESS:        0.35,
	models.ProtocolHysteria2:    0.30,
	models.ProtocolTUIC:         0.30,
	models.ProtocolTrojan:       0.25,
	models.ProtocolSS2022:       0.20,
	models.ProtocolVMess:        0.18,
	models.ProtocolHTTP:         0.10,
	models.ProtocolSOCKS5:       0.10,
	models.ProtocolShadowsocks:  0.08,
	models.ProtocolShadowsocksR: 0.05,
}

const (
	aeadBonus = 0.10
	tlsBonus  = 0.05
)

// InitialScore computes cfg's starting quality_score from the reputation of
// the source that produced it, a per-protocol base rank, and parser
// annotations. The result is clamped to [0,1] to preserve the
// VPNConfiguration invariant.
func InitialScore(cfg *models.VPNConfiguration, sourceReputation float64) float64 {
	score := 0.4*sourceReputation + protocolRank[cfg.Protocol]

	if aead, ok := cfg.GetMetadata("aead_support"); ok && aead == "true" {
		score += aeadBonus
	}
	if cfg.TLS {
		score += tlsBonus
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// ApplyInitialScores sets QualityScore on every config in place, looking up
// each one's source reputation via reputationOf.
func ApplyInitialScores(configs []*models.VPNConfiguration, reputationOf func(sourceURL string) float64) {
	for _, cfg := range configs {
		cfg.QualityScore = InitialScore(cfg, reputationOf(cfg.SourceURL))
	}
}
