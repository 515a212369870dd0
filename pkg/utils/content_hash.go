// This file implements the stable content hash used by the processor's
// "content_hash" deduplication strategy (spec §4.4): a hash over the
// normalized fields of a VPNConfiguration, independent of field ordering or
// incidental metadata.
//
// Uses the same FNV-1a primitive as HashRing for consistency with the rest
// of this package, applied to a canonical, delimiter-separated projection
// of the fields that define configuration identity.
package utils

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/vpnmerger/aggregator/pkg/models"
)

// ContentHash computes a stable hash over the normalized identity fields of
// a VPN configuration: protocol, server, port, and any credentials/UUID
// that distinguish otherwise-identical endpoints.
func ContentHash(cfg *models.VPNConfiguration) string {
	var b strings.Builder
	b.WriteString(string(cfg.Protocol))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(cfg.Server))
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d", cfg.Port)
	b.WriteByte('|')
	b.WriteString(cfg.UUID)
	b.WriteByte('|')
	b.WriteString(cfg.UserID)
	b.WriteByte('|')
	b.WriteString(cfg.Password)
	b.WriteByte('|')
	b.WriteString(cfg.Network)
	b.WriteByte('|')
	b.WriteString(cfg.Path)

	h := fnv.New64a()
	h.Write([]byte(b.String()))
	return fmt.Sprintf("%x", h.Sum64())
}

// ServerPortKey returns the server+port dedup key.
func ServerPortKey(cfg *models.VPNConfiguration) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(cfg.Server), cfg.Port)
}

// ServerProtocolKey returns the server+protocol dedup key.
func ServerProtocolKey(cfg *models.VPNConfiguration) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(cfg.Server), cfg.Protocol)
}
