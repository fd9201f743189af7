package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docparse-backend/internal/shared/server/respond"
)

const (
	apiKeyHeader = "X-API-Key"
	principalKey = "principal"
)

// APIKey rejects requests whose X-API-Key header does not match key.
// An empty key disables the check. Paths in open bypass authentication.
func APIKey(key string, open ...string) gin.HandlerFunc {
	key = strings.TrimSpace(key)
	openPaths := make(map[string]struct{}, len(open))
	for _, p := range open {
		openPaths[p] = struct{}{}
	}
	want := sha256.Sum256([]byte(key))

	return func(c *gin.Context) {
		if key == "" || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if _, ok := openPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		got := strings.TrimSpace(c.GetHeader(apiKeyHeader))
		if got == "" {
			if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				got = strings.TrimSpace(bearer)
			}
		}
		sum := sha256.Sum256([]byte(got))
		if got == "" || subtle.ConstantTimeCompare(sum[:], want[:]) != 1 {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid api key", nil)
			return
		}

		c.Set(principalKey, "key:"+hex.EncodeToString(sum[:6]))
		c.Next()
	}
}

// PrincipalFromContext returns the authenticated caller label, if any.
func PrincipalFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(principalKey)
}
