package access

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/core/logger"
	"github.com/relabs-tech/fwevents/core/registry"
)

// JwtMiddlewareBuilder is a helper builder for JwtMiddelware
type JwtMiddlewareBuilder struct {
	// KeysDownloadURL is the download url for the operator token signing
	// keys, a JSON map of key id to PEM encoded RSA public key or
	// certificate.
	KeysDownloadURL string
	// Issuer is the accepted issuer for operator tokens. Tokens from
	// other issuers are rejected when set.
	Issuer string
	// DB is the postgres database used to cache the downloaded keys.
	DB *csql.DB
}

// NewJwtMiddelware returns a middleware handler to validate
// JWT bearer token for operators.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer"
// header. Tokens must be signed with RS256 by one of the well-known
// keys from the builder's download URL. The downloaded key set is
// cached in the registry and only downloaded again when the cached
// set is older than six hours. The token carries the operator's roles
// as "roles" claim; the subject - if present - identifies the
// operator in the request log.
//
// This is a final handler with regards to the bearer token. It will return
// http.StatusUnauthorized when a token is available but insufficent to
// authorize the request. Requests without token simply pass through
// without authorization.
func NewJwtMiddelware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {

	jwtRegistry := registry.New(jmb.DB).Accessor("_jwt_")
	var wellKnownKeys map[string]string
	timestamp, err := jwtRegistry.Read(jmb.KeysDownloadURL, &wellKnownKeys)
	if err != nil {
		panic(err)
	}
	if time.Since(timestamp) > 6*time.Hour {
		// time to check for new keys
		res, err := http.Get(jmb.KeysDownloadURL)
		if err != nil {
			logger.Default().WithError(err).Errorln("cannot download operator keys")
			return func(h http.Handler) http.Handler { return h }
		}
		defer res.Body.Close()
		if err := json.NewDecoder(res.Body).Decode(&wellKnownKeys); err != nil {
			panic(err)
		}
		jwtRegistry.Write(jmb.KeysDownloadURL, wellKnownKeys)
	}

	signingKeys := map[string]*rsa.PublicKey{}
	for kid, pemData := range wellKnownKeys {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemData))
		if err != nil {
			logger.Default().WithError(err).Errorln("unusable operator key", kid)
			continue
		}
		signingKeys[kid] = key
	}

	keyLookup := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("token has no key id")
		}
		key, ok := signingKeys[kid]
		if !ok {
			return nil, fmt.Errorf("have %d well known keys, but not %s", len(signingKeys), kid)
		}
		return key, nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := AuthorizationFromContext(r.Context())
			if auth != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) > 0 && bearer != "null" {
				if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
					tokenString = bearer[7:]
				} else {
					tokenString = bearer
				}
			}
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			claims := struct {
				Roles []string `json:"roles"`
				jwt.RegisteredClaims
			}{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyLookup)
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if len(jmb.Issuer) > 0 && claims.Issuer != jmb.Issuer {
				http.Error(w, "invalid token issuer", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			if len(claims.Subject) > 0 {
				ctx, _ = logger.ContextWithLoggerIdentity(ctx, claims.Subject)
			}
			auth = &Authorization{Roles: claims.Roles}
			ctx = auth.ContextWithAuthorization(ctx)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
