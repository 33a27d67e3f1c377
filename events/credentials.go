package events

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
	"github.com/relabs-tech/fwevents/core/csql"
	"github.com/relabs-tech/fwevents/core/logger"
)

// DeviceKeyHeader carries a device api key for the ingestion routes.
const DeviceKeyHeader = "X-Device-Api-Key"

// MembershipKeyHeader carries a membership api key for the listing routes.
const MembershipKeyHeader = "X-Project-Membership-Api-Key"

// addKeyMiddleware installs api key authorization middleware on the router.
// Api keys are uuid strings issued with CreateDeviceKey and
// CreateMembershipKey. Resolved authorizations are cached, only the first
// request with a given key hits the database.
//
// The middleware rejects keys it cannot resolve. Requests without any key
// pass through unauthorized, the routes themselves decide whether they
// require authorization.
func (s *Service) addKeyMiddleware(router *mux.Router) {
	deviceCache := access.NewAuthorizationCache()
	membershipCache := access.NewAuthorizationCache()

	router.Use(
		func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				auth := access.AuthorizationFromContext(r.Context())
				if auth != nil { // already authorized?
					h.ServeHTTP(w, r)
					return
				}

				if key := r.Header.Get(DeviceKeyHeader); len(key) > 0 {
					auth = deviceCache.Read(key)
					if auth == nil {
						if _, err := uuid.Parse(key); err != nil {
							jsonError(w, http.StatusUnauthorized, "Access denied. Invalid device key")
							return
						}
						device, err := s.store.DeviceByKey(r.Context(), key)
						if err == csql.ErrNoRows {
							jsonError(w, http.StatusNotFound, "Device not found")
							return
						}
						if err != nil {
							logger.Default().WithError(err).Errorf("Error 2736")
							http.Error(w, "Error 2736", http.StatusInternalServerError)
							return
						}
						auth = &access.Authorization{
							Roles: []string{"device"},
							Selectors: map[string]string{
								"device_id":  device.DeviceID.String(),
								"project_id": device.ProjectID.String(),
							},
						}
						deviceCache.Write(key, auth)
					}
					r = r.WithContext(auth.ContextWithAuthorization(r.Context()))
				} else if key := r.Header.Get(MembershipKeyHeader); len(key) > 0 {
					auth = membershipCache.Read(key)
					if auth == nil {
						if _, err := uuid.Parse(key); err != nil {
							jsonError(w, http.StatusUnauthorized, "Access Denied. Invalid membership api key")
							return
						}
						membership, err := s.store.MembershipByKey(r.Context(), key)
						if err == csql.ErrNoRows {
							jsonError(w, http.StatusNotFound, "Member not found")
							return
						}
						if err != nil {
							logger.Default().WithError(err).Errorf("Error 2737")
							http.Error(w, "Error 2737", http.StatusInternalServerError)
							return
						}
						auth = &access.Authorization{
							Roles: []string{"member"},
							Selectors: map[string]string{
								"membership_id": membership.MembershipID.String(),
								"project_id":    membership.ProjectID.String(),
							},
						}
						membershipCache.Write(key, auth)
					}
					r = r.WithContext(auth.ContextWithAuthorization(r.Context()))
				}

				h.ServeHTTP(w, r)
			})
		})
}
