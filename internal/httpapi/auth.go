package httpapi

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// AdminJWTCfg guards the admin surface.
type AdminJWTCfg struct {
	HS256Secret string // HMAC secret for HS256 tokens
	DevMode     bool   // Allow X-Debug-Admin header (DANGEROUS: only for local dev)
}

// adminAuth creates HTTP middleware for the admin routes. Two modes:
// Bearer token with HS256 validation, or the X-Debug-Admin header when
// DevMode is on.
func adminAuth(cfg AdminJWTCfg) func(http.Handler) http.Handler {
	if cfg.DevMode {
		log.Warn().Msg("SECURITY WARNING: DevMode enabled - X-Debug-Admin header will bypass admin JWT authentication")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := ""
			if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
				tok = h[7:]
			}

			if cfg.DevMode && tok == "" && r.Header.Get("X-Debug-Admin") != "" {
				next.ServeHTTP(w, r)
				return
			}

			if tok == "" || cfg.HS256Secret == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(cfg.HS256Secret), nil
			})
			if err != nil || !t.Valid {
				log.Warn().Err(err).Msg("admin jwt validation failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
