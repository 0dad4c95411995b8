package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/settlement-hub/settlement-hub/internal/domain/protocol"
)

// rateLimit applies the per-agent token bucket to inbound traffic. The bucket
// key is the claimed agent id when present, falling back to the remote IP.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Agent-ID"))
		if key == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			key = host
		}
		if !s.limiter.Allow(key) {
			respondRejection(w, protocol.Reject(protocol.ReasonRateLimited, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
