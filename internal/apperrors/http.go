package apperrors

import "net/http"

// FromStatus classifies a non-2xx response by status code.
// 409 is handled separately by the transport layer because a mismatch body
// carries the server-declared version; this fallback is for 409s without one.
func FromStatus(endpoint string, status int, body string) error {
	switch status {
	case http.StatusNotFound:
		return NotFound(endpoint)
	default:
		return Server(endpoint, status, body)
	}
}
