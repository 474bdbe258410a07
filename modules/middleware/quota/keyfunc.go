package quota

import (
	"net/http"
	"strings"

	rl "quotaguard/modules/quota"
)

// KeyFunc extracts from a HTTP request the identifier quota is tracked
// against: a forwarded client IP, an authenticated user id, etc.
type KeyFunc func(*http.Request) rl.Key

// ClientIPKeyFunc derives a stable caller identifier from proxy headers:
// the first X-Forwarded-For entry (the originating client; later entries
// are intermediaries), then X-Real-Ip, then Cf-Connecting-Ip. It always
// returns a value: an unattributable request maps to "ip:unknown" so all
// such callers share one bucket instead of bypassing metering.
func ClientIPKeyFunc(r *http.Request) rl.Key {
	return rl.Key("ip:" + clientIP(r.Header))
}

func clientIP(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := h.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	if ip := h.Get("Cf-Connecting-Ip"); ip != "" {
		return ip
	}
	return "unknown"
}

// UserKeyFunc keys quota on the authenticated user id propagated by the
// upstream auth layer. Returns an empty key when the header is absent;
// the middleware's AllowIfNoIdentifier policy decides what happens then.
func UserKeyFunc(r *http.Request) rl.Key {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		return ""
	}
	return rl.Key("user:" + id)
}
