// Dedup strategies from spec §4.4, built on the content-hash and key
// helpers in pkg/utils. Order-stable: first occurrence in input order wins
// a tie on quality_score, matching the ordering guarantee in spec §5 ("dedup
// is order-stable; first occurrence wins when scores tie").
package processor

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
	"github.com/vpnmerger/aggregator/pkg/utils"
)

// DedupStrategy names one of the four selectable deduplication keys.
type DedupStrategy string

const (
	StrategyExact           DedupStrategy = "exact"
	StrategyServerPort       DedupStrategy = "server_port"
	StrategyServerProtocol   DedupStrategy = "server_protocol"
	StrategyContentHash      DedupStrategy = "content_hash"
)

// keyFor computes the dedup key for cfg under the given strategy.
func keyFor(cfg *models.VPNConfiguration, strategy DedupStrategy) string {
	switch strategy {
	case StrategyServerPort:
		return utils.ServerPortKey(cfg)
	case StrategyServerProtocol:
		return utils.ServerProtocolKey(cfg)
	case StrategyContentHash:
		return utils.ContentHash(cfg)
	default: // StrategyExact
		return exactKey(cfg)
	}
}

// exactKey hashes the canonical form of every identity-bearing field,
// stricter than ContentHash (which omits TLS/SNI/ALPN/flow).
func exactKey(cfg *models.VPNConfiguration) string {
	var b strings.Builder
	b.WriteString(string(cfg.Protocol))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(cfg.Server))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(cfg.Port))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(cfg.UUID))
	b.WriteByte('|')
	b.WriteString(cfg.UserID)
	b.WriteByte('|')
	b.WriteString(cfg.Password)
	b.WriteByte('|')
	b.WriteString(cfg.Network)
	b.WriteByte('|')
	b.WriteString(cfg.Path)
	b.WriteByte('|')
	b.WriteString(cfg.SNI)
	b.WriteByte('|')
	b.WriteString(cfg.ALPN)
	b.WriteByte('|')
	b.WriteString(cfg.Flow)
	if cfg.TLS {
		b.WriteString("|tls")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// FindDuplicates groups configs by the given strategy's key. The boundary
// case of an empty slice returns an empty (non-nil) map.
func FindDuplicates(configs []*models.VPNConfiguration, strategy DedupStrategy) map[string][]*models.VPNConfiguration {
	groups := make(map[string][]*models.VPNConfiguration)
	for _, cfg := range configs {
		key := keyFor(cfg, strategy)
		groups[key] = append(groups[key], cfg)
	}
	return groups
}

// Deduplicate keeps one representative per dedup key: the highest
// quality_score, ties broken by earliest observation in configs. Idempotent
// per spec §8: Deduplicate(Deduplicate(X, s), s) == Deduplicate(X, s),
// because every surviving representative already occupies a singleton group
// on a second pass.
func Deduplicate(configs []*models.VPNConfiguration, strategy DedupStrategy) []*models.VPNConfiguration {
	type slot struct {
		best  *models.VPNConfiguration
		order int
	}
	bestByKey := make(map[string]*slot)
	var keys []string

	for i, cfg := range configs {
		key := keyFor(cfg, strategy)
		cur, exists := bestByKey[key]
		if !exists {
			bestByKey[key] = &slot{best: cfg, order: i}
			keys = append(keys, key)
			continue
		}
		if cfg.QualityScore > cur.best.QualityScore {
			cur.best = cfg
			cur.order = i
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return bestByKey[keys[i]].order < bestByKey[keys[j]].order
	})
	out := make([]*models.VPNConfiguration, 0, len(keys))
	for _, key := range keys {
		out = append(out, bestByKey[key].best)
	}
	return out
}
