package events

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
	"github.com/relabs-tech/fwevents/core/logger"
)

// Version of the running build. Overridden at build time:
//
//	go build -ldflags "-X github.com/relabs-tech/fwevents/events.Version=v1.2.3"
var Version = "unset"

func (s *Service) handleVersion(router *mux.Router) {
	logger.Default().Debugln("version")
	logger.Default().Debugln("  handle version route: /fwevents/version GET")
	router.HandleFunc("/fwevents/version", s.getVersion).Methods(http.MethodOptions, http.MethodGet)
}

func (s *Service) getVersion(w http.ResponseWriter, r *http.Request) {
	if s.authorizationEnabled {
		auth := access.AuthorizationFromContext(r.Context())
		if !auth.HasRole("admin") {
			http.Error(w, "not authorized", http.StatusUnauthorized)
			return
		}
	}
	data, _ := json.Marshal(map[string]string{"version": Version})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}
