// Package fingerprint derives anonymous visitor keys from request metadata.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// VisitorKey is the hex SHA-256 digest identifying a visitor. The raw user
// agent and address are never stored.
type VisitorKey string

// Hash is a pure function of its inputs.
func Hash(userAgent, clientAddress string) VisitorKey {
	sum := sha256.Sum256([]byte(userAgent + "-" + clientAddress))
	return VisitorKey(hex.EncodeToString(sum[:]))
}

// FromRequest hashes the request's user agent and client address.
func FromRequest(r *http.Request) VisitorKey {
	return Hash(r.UserAgent(), ClientAddress(r))
}

// ClientAddress returns the first X-Forwarded-For hop, then X-Real-IP, then
// the host part of RemoteAddr, or "unknown".
func ClientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "unknown"
}

type DeviceClass string

const (
	Mobile  DeviceClass = "mobile"
	Tablet  DeviceClass = "tablet"
	Desktop DeviceClass = "desktop"
)

// Device classifies a user agent by substring. It runs once, when the
// event is recorded.
func Device(userAgent string) DeviceClass {
	switch {
	case strings.Contains(userAgent, "Mobile"):
		return Mobile
	case strings.Contains(userAgent, "Tablet"):
		return Tablet
	default:
		return Desktop
	}
}
