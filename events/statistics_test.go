package events

import (
	"net/http"
	"testing"
)

func TestStatistics(t *testing.T) {
	tenant := seedTenant(t, testService.service)

	// store at least one firmware event
	status, err := testService.clientNoAuth.RawPostWithHeader("/firmware",
		reportHeaders(tenant.deviceKey), report{Version: "5.0.0", Timestamp: 50}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusAccepted {
		t.Fatalf("Expecting status %d, got %d", http.StatusAccepted, status)
	}
	testService.service.ProcessTasksSync(-1)

	// statistics are for administrators only
	status, _, _ = testService.clientNoAuth.RawGetWithHeader("/fwevents/statistics", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}

	var stats StatisticsDetails
	_, header, err := testService.client.RawGetWithHeader("/fwevents/statistics", nil, &stats)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int64{}
	for _, resource := range stats.Resources {
		counts[resource.Resource] = resource.Count
	}
	if counts["device_firmware_event"] < 1 {
		t.Fatal("missing firmware events:", asJSON(stats))
	}
	if counts["project"] < 1 || counts["membership"] < 1 || counts["device"] < 1 {
		t.Fatal("missing resources:", asJSON(stats))
	}
	if len(stats.Tasks) != 1 || stats.Tasks[0].Resource != "_task_" {
		t.Fatal("missing task statistics:", asJSON(stats))
	}

	// an unchanged database replies 304 to a matching If-None-Match
	etag := header.Get("Etag")
	if etag == "" {
		t.Fatal("response carries no Etag")
	}
	status, _, _ = testService.client.RawGetWithHeader("/fwevents/statistics",
		map[string]string{"If-None-Match": etag}, nil)
	if status != http.StatusNotModified {
		t.Fatalf("Expecting status %d, got %d", http.StatusNotModified, status)
	}

	// the read-only administrator role may look as well
	viewer := testService.clientNoAuth.WithRole("admin viewer")
	status, err = viewer.RawGet("/fwevents/statistics", nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatalf("Expecting status %d, got %d", http.StatusOK, status)
	}
}
