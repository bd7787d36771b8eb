package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const tokenCookieName = "vg_token"

// authMiddleware accepts the admin token as a bearer header or cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || !s.validToken(requestToken(r)) {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validToken(got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if cookie, err := r.Cookie(tokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// ResolveToken returns the configured admin token. Without one it reuses
// the token in tokenFile, or generates a new one and writes it there.
func ResolveToken(configured, tokenFile string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err == nil {
			if tok := strings.TrimSpace(string(data)); tok != "" {
				return tok, nil
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read token file: %w", err)
		}
	}

	tok, err := generateToken()
	if err != nil {
		return "", err
	}
	if tokenFile != "" {
		if err := os.WriteFile(tokenFile, []byte(tok), 0600); err != nil {
			return "", fmt.Errorf("write token file: %w", err)
		}
	}
	return tok, nil
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
