package server

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/metrics"
)

// Reasons a WebSocket handshake is refused at the origin check.
const (
	originMissing    = "missing"
	originMalformed  = "malformed"
	originDisallowed = "disallowed"
)

// originAllowList is the normalized form of Config.AllowedOrigins.
type originAllowList struct {
	origins  map[string]struct{}
	allowAll bool
}

// newOriginAllowList normalizes origins, dropping blank and invalid entries.
// "*" allows any well-formed origin.
func newOriginAllowList(origins []string) ([]string, originAllowList) {
	list := originAllowList{origins: make(map[string]struct{}, len(origins))}
	normalized := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			list.allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			zap.L().Warn("Ignoring invalid origin in configuration", zap.String("origin", origin))
			continue
		}
		if _, dup := list.origins[normalizedOrigin]; dup {
			continue
		}
		list.origins[normalizedOrigin] = struct{}{}
		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, list
}

// verdict returns the rejection reason for an Origin header value, or "" when
// the origin is allowed.
func (l originAllowList) verdict(header string) string {
	if header == "" {
		return originMissing
	}
	origin, ok := normalizeOrigin(header)
	if !ok {
		return originMalformed
	}
	if l.allowAll {
		return ""
	}
	if _, exists := l.origins[origin]; exists {
		return ""
	}
	return originDisallowed
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// originVerdict checks r against the active allow-list.
func originVerdict(r *http.Request) string {
	configMu.RLock()
	list := activeOrigins
	configMu.RUnlock()

	return list.verdict(r.Header.Get("Origin"))
}

// checkOrigin is the upgrader's CheckOrigin. Refusals are logged with the
// requested room and counted by reason.
func checkOrigin(r *http.Request) bool {
	reason := originVerdict(r)
	if reason == "" {
		return true
	}

	metrics.OriginRejections.WithLabelValues(reason).Inc()
	zap.L().Warn("Blocked WebSocket connection",
		zap.String("reason", reason),
		zap.String("origin", r.Header.Get("Origin")),
		zap.String("room", r.URL.Query().Get("room")),
		zap.String("remote", r.RemoteAddr))
	return false
}
