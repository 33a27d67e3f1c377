/*Package access implements request authorization for the firmware event
service.

Middlewares inspect the credentials of an incoming HTTP request and, when
they check out, attach an Authorization object to the request context. The
service supports JWT bearer tokens for operators, an X-Device-Api-Key
header for devices and an X-Project-Membership-Api-Key header for project
members.
*/
package access

import (
	"context"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/fwevents/core/logger"
)

// contextKey keeps our context keys from colliding with keys of other packages
type contextKey string

const (
	contextKeyAuthorization contextKey = "_authorization_"
)

/*Authorization describes what the caller of a request may do.

It carries the caller's roles and a set of selectors, the resource
identities the credential is bound to. A device API key, for example,
yields the role "device" with selectors for the device and its project.

Middleware stores the authorization in the request context with

  ctx = auth.ContextWithAuthorization(ctx)

and handlers pick it up again with

  auth := AuthorizationFromContext(ctx)
*/
type Authorization struct {
	Roles     []string          `json:"roles"`
	Selectors map[string]string `json:"selectors,omitempty"`
}

// HasRole reports whether the authorization carries the given role.
// A nil authorization carries no roles.
func (a *Authorization) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, hasRole := range a.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// Selector returns the value for the requested selector; if the
// selector does not exist, it returns an empty string and false.
func (a *Authorization) Selector(key string) (string, bool) {
	if a == nil || a.Selectors == nil {
		return "", false
	}
	value, ok := a.Selectors[key]
	return value, ok
}

// ContextWithAuthorization returns a new context carrying this authorization.
func (a *Authorization) ContextWithAuthorization(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, a)
}

// AuthorizationFromContext returns the authorization stored in ctx, or nil
// if the request was not authorized.
func AuthorizationFromContext(ctx context.Context) *Authorization {
	if a, ok := ctx.Value(contextKeyAuthorization).(*Authorization); ok {
		return a
	}
	return nil
}

// AuthorizationCache is an in-memory cache of authorizations, keyed by the
// token they were derived from. The key middlewares use it to avoid a
// database lookup for every single request.
type AuthorizationCache struct {
	mutex sync.RWMutex
	auths map[string]*Authorization
}

// NewAuthorizationCache returns an empty cache ready for use.
func NewAuthorizationCache() *AuthorizationCache {
	return &AuthorizationCache{auths: make(map[string]*Authorization)}
}

// Read returns the authorization cached for token, or nil.
// This function is go-routine safe.
func (c *AuthorizationCache) Read(token string) *Authorization {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.auths[token]
}

// Write caches an authorization for token.
// This function is go-routine safe.
func (c *AuthorizationCache) Write(token string, auth *Authorization) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.auths[token] = auth
}

// HandleAuthorizationRoute adds a route /authorization GET to the router.
//
// The route returns the authorization for the credentials in the request,
// mainly as a debugging aid.
func HandleAuthorizationRoute(router *mux.Router) {
	logger.Default().Debugln("authorization")
	logger.Default().Debugln("  handle route: /authorization GET")
	router.HandleFunc("/authorization", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		auth := AuthorizationFromContext(r.Context())
		if auth == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		jsonData, _ := json.MarshalIndent(auth, "", " ")
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonData)
	}).Methods(http.MethodGet)
}
