// Package headers builds the set of HTTP headers forwarded from a
// consumed record onto the outbound request, per the forward-headers
// option group (SPEC_FULL §3/§4.? C5): glob include/exclude patterns
// over the record's own headers, an optional name prefix, and a fixed
// set of static headers layered on top.
package headers

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/verjil-oss/httpsink-bridge/internal/config"
)

// Builder turns a record's headers into the headers an outbound request
// should carry.
type Builder struct {
	cfg config.ForwardHeadersConfig
}

func New(cfg config.ForwardHeadersConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build applies Include/Exclude globs to recordHeaders, sanitizes and
// renames surviving names with Prefix, concatenates values that
// collide onto the same output name, and layers Static on top (static
// headers always win on name collision).
func (b *Builder) Build(recordHeaders map[string]string) map[string]string {
	out := make(map[string]string, len(recordHeaders)+len(b.cfg.Static))

	if b.cfg.Enabled {
		names := make([]string, 0, len(recordHeaders))
		for name := range recordHeaders {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if !b.matches(name) {
				continue
			}
			outName := b.cfg.Prefix + sanitizeName(name)
			value := recordHeaders[name]
			if existing, ok := out[outName]; ok {
				out[outName] = existing + "," + value
			} else {
				out[outName] = value
			}
		}
	}

	for name, value := range b.cfg.Static {
		out[name] = value
	}

	return out
}

// sanitizeName replaces every character outside [A-Za-z0-9._-] with
// "-" and prepends "X-" when the result does not start with a letter,
// per the header-forwarder's name rule.
func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	sanitized := sb.String()

	first := byte(0)
	if len(sanitized) > 0 {
		first = sanitized[0]
	}
	isLetter := (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')
	if !isLetter {
		return "X-" + sanitized
	}
	return sanitized
}

func (b *Builder) matches(name string) bool {
	if len(b.cfg.Include) > 0 && !matchesAny(b.cfg.Include, name) {
		return false
	}
	if matchesAny(b.cfg.Exclude, name) {
		return false
	}
	return true
}

func matchesAny(patterns []string, name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(strings.ToLower(pattern), lower); ok {
			return true
		}
	}
	return false
}
