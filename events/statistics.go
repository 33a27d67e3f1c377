// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package events

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
	"github.com/relabs-tech/fwevents/core/logger"
)

// ResourceStatistics describes size and row count of a single database table.
type ResourceStatistics struct {
	Resource     string  `json:"resource"`
	Count        int64   `json:"count"`
	SizeMB       float64 `json:"size_mb"`
	AverageSizeB float64 `json:"average_size_b"`
}

// StatisticsDetails is the response of the statistics route.
type StatisticsDetails struct {
	Resources []ResourceStatistics `json:"resources"`
	Tasks     []ResourceStatistics `json:"tasks"`
}

// resourceTables are the tables reported under "resources". The task queue
// is reported separately under "tasks".
var resourceTables = []string{
	"project",
	"membership",
	"membership_api_key",
	"device",
	"device_api_key",
	"device_firmware_event",
}

func (s *Service) handleStatistics(router *mux.Router) {
	logger.Default().Debugln("statistics")
	logger.Default().Debugln("  handle statistics route: /fwevents/statistics GET")
	router.Handle("/fwevents/statistics", handlers.CompressHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		s.getStatistics(w, r)
	}))).Methods(http.MethodOptions, http.MethodGet)
}

func (s *Service) getStatistics(w http.ResponseWriter, r *http.Request) {
	if s.authorizationEnabled {
		auth := access.AuthorizationFromContext(r.Context())
		if !auth.HasRole("admin") && !auth.HasRole("admin viewer") {
			http.Error(w, "not authorized", http.StatusUnauthorized)
			return
		}
	}

	stats := StatisticsDetails{}
	var err error
	if stats.Resources, err = s.tableStatistics(resourceTables); err == nil {
		stats.Tasks, err = s.tableStatistics([]string{"_task_"})
	}
	if err != nil {
		logger.FromContext(r.Context()).WithError(err).Errorln("Error 4028: statistics query")
		http.Error(w, "Error 4028: ", http.StatusInternalServerError)
		return
	}

	jsonData, _ := json.Marshal(stats)
	etag := bytesToEtag(jsonData)
	w.Header().Set("Etag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(jsonData)
}

// tableStatistics reports total relation size and row count for the given
// tables in the service schema. The result is sorted by table name so that
// the ETag of the statistics route does not depend on declaration order.
func (s *Service) tableStatistics(tables []string) ([]ResourceStatistics, error) {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)

	stats := []ResourceStatistics{} // an empty array in JSON, not null
	for _, table := range sorted {
		relation := fmt.Sprintf(`%s."%s"`, s.db.Schema, table)
		var size, count int64
		err := s.db.QueryRow(fmt.Sprintf(
			`SELECT pg_total_relation_size('%s'), count(*) FROM %s;`, relation, relation,
		)).Scan(&size, &count)
		if err != nil {
			return nil, fmt.Errorf("statistics for %s: %w", relation, err)
		}
		var averageSize float64
		if count > 0 {
			averageSize = float64(size / count)
		}
		stats = append(stats, ResourceStatistics{
			Resource:     table,
			Count:        count,
			SizeMB:       float64(size) / 1024. / 1024.,
			AverageSizeB: averageSize,
		})
	}
	return stats, nil
}

// bytesToEtag derives a strong ETag from the response body.
func bytesToEtag(b []byte) string {
	return fmt.Sprintf("\"%x\"", md5.Sum(b))
}

// etagMatches reports whether etag is listed in the If-None-Match header
// value, which is either "*" or a comma separated list of quoted tags.
func etagMatches(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	etag = strings.Trim(etag, `"`)
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.Trim(candidate, ` "`) == etag {
			return true
		}
	}
	return false
}
