package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"testing"
)

func TestHash_Deterministic(t *testing.T) {
	a := Hash("Mozilla/5.0", "203.0.113.7")
	b := Hash("Mozilla/5.0", "203.0.113.7")
	if a != b {
		t.Errorf("got %s and %s, want identical keys", a, b)
	}
	if len(a) != 64 {
		t.Errorf("got key length %d, want 64", len(a))
	}
	if Hash("Mozilla/5.0", "203.0.113.8") == a {
		t.Error("different addresses produced the same key")
	}
}

func TestHash_MatchesDigestOfJoinedInputs(t *testing.T) {
	sum := sha256.Sum256([]byte("ua-1.2.3.4"))
	want := VisitorKey(hex.EncodeToString(sum[:]))
	if got := Hash("ua", "1.2.3.4"); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestClientAddress(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:1234", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:1234", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.9:5555", "192.0.2.9"},
		{"remote without port", nil, "192.0.2.9", "192.0.2.9"},
		{"nothing", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientAddress(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDevice(t *testing.T) {
	tests := map[string]DeviceClass{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148": Mobile,
		"Mozilla/5.0 (Linux; Android 13; Tablet)":                Tablet,
		"Mozilla/5.0 (X11; Linux x86_64)":                        Desktop,
		"":                                                       Desktop,
	}
	for ua, want := range tests {
		if got := Device(ua); got != want {
			t.Errorf("Device(%q) = %s, want %s", ua, got, want)
		}
	}
}
