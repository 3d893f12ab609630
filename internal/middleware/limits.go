package middleware

import "net/http"

// DefaultMaxBodySize bounds request bodies. Webhook payloads and booking
// requests are small; 1MB leaves plenty of headroom.
const DefaultMaxBodySize = 1 << 20

// MaxBodySize rejects bodies over maxBytes with 413 and caps reads on the
// rest so a lying Content-Length cannot bypass the limit.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
