// Package keys derives Redis keys for cached layer metadata.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const metadataPrefix = "meta"

// Metadata returns the cache key for layer on server. The layer name is kept
// readable; the server URL only contributes a hash so keys stay short.
func Metadata(server, layer string) string {
	layerNorm := sanitizeLayer(strings.TrimSpace(layer))
	serverNorm := normalizeServer(server)

	const maxLayerLen = 160
	if len(layerNorm) > maxLayerLen {
		layerNorm = layerNorm[:maxLayerLen]
	}
	return fmt.Sprintf("%s:%s:s=%016x:l=%016x", metadataPrefix, layerNorm,
		xxhash.Sum64String(serverNorm), xxhash.Sum64String(strings.TrimSpace(layer)))
}

// LayerPattern matches every server's key for layer, for SCAN based eviction.
func LayerPattern(layer string) string {
	return fmt.Sprintf("%s:%s:s=*:l=%016x", metadataPrefix, sanitizeLayer(strings.TrimSpace(layer)),
		xxhash.Sum64String(strings.TrimSpace(layer)))
}

// trailing slashes, a trailing /ows and scheme case do not change the server
func normalizeServer(s string) string {
	s = strings.TrimSpace(s)
	if scheme, rest, ok := strings.Cut(s, "://"); ok {
		s = strings.ToLower(scheme) + "://" + rest
	}
	s = strings.TrimRight(s, "/")
	s = strings.TrimSuffix(s, "/ows")
	return strings.TrimRight(s, "/")
}

func sanitizeLayer(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
