package db

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/ticketbridge/internal/config"
)

// managedHostSuffixes are managed-Postgres providers whose certificate
// chains routinely fail strict validation behind connection poolers.
// Unset SSL mode relaxes validation for these hosts even in production.
var managedHostSuffixes = []string{
	".neon.tech",
	".render.com",
	".supabase.co",
	".rds.amazonaws.com",
}

func isManagedHost(host string) bool {
	for _, suffix := range managedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// tlsFor resolves the DATABASE_SSL_VALIDATE contract into a TLS config:
//
//	full  -> SSL disabled entirely (dev only)
//	true  -> strict certificate validation
//	false -> TLS on, validation off
//	unset -> strict in production, relaxed in development; known managed
//	         hosts force relaxed
//
// DATABASE_SSL_CA, when set, is appended to the trust store.
func tlsFor(cfg *config.Config, host string) (*tls.Config, error) {
	mode := cfg.SSLValidate
	if mode == config.SSLDefault {
		switch {
		case isManagedHost(host):
			mode = config.SSLRelaxed
		case cfg.Production():
			mode = config.SSLStrict
		default:
			mode = config.SSLRelaxed
		}
	}

	if mode == config.SSLDisabled {
		log.Warn().Msg("database SSL disabled entirely (DATABASE_SSL_VALIDATE=full)")
		return nil, nil
	}

	tc := &tls.Config{ServerName: host}
	if mode == config.SSLRelaxed {
		tc.InsecureSkipVerify = true
	}

	if cfg.SSLCA != "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM([]byte(cfg.SSLCA)) {
			return nil, fmt.Errorf("db: DATABASE_SSL_CA contains no usable PEM certificates")
		}
		tc.RootCAs = pool
	}

	return tc, nil
}
