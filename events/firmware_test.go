package events

import (
	"net/http"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func reportHeaders(deviceKey string) map[string]string {
	return map[string]string{
		DeviceKeyHeader: deviceKey,
		"Content-Type":  "application/json",
	}
}

func listHeaders(membershipKey string) map[string]string {
	return map[string]string{MembershipKeyHeader: membershipKey}
}

type report struct {
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

func TestFirmwarePostAndList(t *testing.T) {
	tenant := seedTenant(t, testService.service)
	cl := testService.clientNoAuth

	// reports arrive out of chronological order
	reports := []report{
		{Version: "3.0.0", Timestamp: 300},
		{Version: "1.0.0", Timestamp: 100},
		{Version: "2.0.0", Timestamp: 200},
	}
	for _, report := range reports {
		var response struct {
			Message string `json:"message"`
		}
		status, err := cl.RawPostWithHeader("/firmware", reportHeaders(tenant.deviceKey), &report, &response)
		if err != nil {
			t.Fatal(err)
		}
		if status != http.StatusAccepted {
			t.Fatalf("Expecting status %d, got %d", http.StatusAccepted, status)
		}
		if response.Message != "Update Accepted." {
			t.Fatal("unexpected response:", asJSON(response))
		}
	}

	// each accepted report is one enqueued task, with the submitted fields unchanged
	var taskCount int
	err := testService.Db.QueryRow(`SELECT count(*) FROM `+testService.Db.Schema+`."_task_" WHERE device_id = $1;`,
		tenant.deviceID).Scan(&taskCount)
	if err != nil {
		t.Fatal(err)
	}
	if taskCount != len(reports) {
		t.Fatalf("Expecting %d enqueued tasks, got %d", len(reports), taskCount)
	}
	var message TaskMessage
	var payload []byte
	err = testService.Db.QueryRow(`SELECT payload FROM `+testService.Db.Schema+`."_task_" WHERE device_id = $1 ORDER BY serial LIMIT 1;`,
		tenant.deviceID).Scan(&payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(payload, &message); err != nil {
		t.Fatal(err)
	}
	if message.DeviceID != tenant.deviceID || message.Version != "3.0.0" || message.Timestamp != 300 {
		t.Fatal("unexpected task payload:", string(payload))
	}

	// accepted means enqueued, the events are not stored yet
	listed := []FirmwareEvent{}
	_, _, err = cl.RawGetWithHeader("/firmware?device_id="+tenant.deviceID.String(),
		listHeaders(tenant.membershipKey), &listed)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 0 {
		t.Fatalf("Expecting no events before processing, got %d", len(listed))
	}

	testService.service.ProcessTasksSync(-1)

	_, _, err = cl.RawGetWithHeader("/firmware?device_id="+tenant.deviceID.String(),
		listHeaders(tenant.membershipKey), &listed)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != len(reports) {
		t.Fatalf("Expecting %d events, got %d", len(reports), len(listed))
	}

	// the listing is ordered by the reported timestamp
	expected := []report{
		{Version: "1.0.0", Timestamp: 100},
		{Version: "2.0.0", Timestamp: 200},
		{Version: "3.0.0", Timestamp: 300},
	}
	for i, e := range expected {
		if listed[i].Version != e.Version || listed[i].Timestamp != e.Timestamp {
			t.Fatal("unexpected listing:", asJSON(listed))
		}
		if listed[i].DeviceID != tenant.deviceID {
			t.Fatal("unexpected device in listing:", asJSON(listed[i]))
		}
		if listed[i].CreatedAt.IsZero() {
			t.Fatal("missing created_at in listing:", asJSON(listed[i]))
		}
	}
}

func TestFirmwarePostUnauthorized(t *testing.T) {
	tenant := seedTenant(t, testService.service)
	cl := testService.clientNoAuth
	body := report{Version: "1.0.0", Timestamp: 100}

	// no key at all
	status, err := cl.RawPostWithHeader("/firmware", map[string]string{"Content-Type": "application/json"}, &body, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}
	if !strings.Contains(err.Error(), "Access denied. Unauthorized request") {
		t.Fatal("unexpected error:", err)
	}

	// a key that is not even a uuid
	status, err = cl.RawPostWithHeader("/firmware", reportHeaders("not-a-uuid"), &body, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}
	if !strings.Contains(err.Error(), "Access denied. Invalid device key") {
		t.Fatal("unexpected error:", err)
	}

	// a well-formed key that belongs to no device
	status, err = cl.RawPostWithHeader("/firmware", reportHeaders("7d35b273-0476-4a5a-8bc5-3912ee677b47"), &body, nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expecting status %d, got %d", http.StatusNotFound, status)
	}
	if !strings.Contains(err.Error(), "Device not found") {
		t.Fatal("unexpected error:", err)
	}

	// a membership key authorizes the member role, not the device role
	headers := map[string]string{
		MembershipKeyHeader: tenant.membershipKey,
		"Content-Type":      "application/json",
	}
	status, _ = cl.RawPostWithHeader("/firmware", headers, &body, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}

	// none of this got enqueued
	var taskCount int
	err = testService.Db.QueryRow(`SELECT count(*) FROM `+testService.Db.Schema+`."_task_" WHERE device_id = $1;`,
		tenant.deviceID).Scan(&taskCount)
	if err != nil {
		t.Fatal(err)
	}
	if taskCount != 0 {
		t.Fatalf("Expecting no enqueued tasks, got %d", taskCount)
	}
}

func TestFirmwarePostContentType(t *testing.T) {
	tenant := seedTenant(t, testService.service)
	cl := testService.clientNoAuth
	body := report{Version: "1.0.0", Timestamp: 100}

	// no content type
	status, err := cl.RawPostWithHeader("/firmware", map[string]string{DeviceKeyHeader: tenant.deviceKey}, &body, nil)
	if status != http.StatusUnsupportedMediaType {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnsupportedMediaType, status)
	}
	if !strings.Contains(err.Error(), "Content-Type must be application/json") {
		t.Fatal("unexpected error:", err)
	}

	// wrong content type
	headers := map[string]string{DeviceKeyHeader: tenant.deviceKey, "Content-Type": "text/plain"}
	status, _ = cl.RawPostWithHeader("/firmware", headers, &body, nil)
	if status != http.StatusUnsupportedMediaType {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnsupportedMediaType, status)
	}

	// json with a charset parameter is json
	headers["Content-Type"] = "application/json; charset=utf-8"
	status, err = cl.RawPostWithHeader("/firmware", headers, &body, nil)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusAccepted {
		t.Fatalf("Expecting status %d, got %d", http.StatusAccepted, status)
	}
}

func TestFirmwarePostValidation(t *testing.T) {
	tenant := seedTenant(t, testService.service)
	cl := testService.clientNoAuth
	headers := reportHeaders(tenant.deviceKey)

	invalid := []interface{}{
		report{Version: "1.0", Timestamp: 100},
		report{Version: "abc", Timestamp: 100},
		report{Version: "1.0.0.0", Timestamp: 100},
		report{Version: "", Timestamp: 100},
		report{Version: "1.0.0", Timestamp: -100},
		map[string]interface{}{"version": "1.0.0", "timestamp": "not-a-timestamp"},
		map[string]interface{}{"version": "1.0.0"},
		map[string]interface{}{"timestamp": 100},
		map[string]interface{}{},
		[]byte(`{`),
		[]byte(``),
	}
	for _, body := range invalid {
		status, _ := cl.RawPostWithHeader("/firmware", headers, body, nil)
		if status != http.StatusBadRequest {
			t.Fatalf("Expecting status %d for %s, got %d", http.StatusBadRequest, asJSON(body), status)
		}
	}

	// semantic versions may carry pre-release and build metadata, and the
	// epoch itself is a valid timestamp
	valid := []report{
		{Version: "1.0.0-alpha.1", Timestamp: 100},
		{Version: "1.0.0+build.47", Timestamp: 200},
		{Version: "2.0.0-rc.1+build.48", Timestamp: 300},
		{Version: "0.0.1", Timestamp: 0},
	}
	for _, body := range valid {
		status, err := cl.RawPostWithHeader("/firmware", headers, &body, nil)
		if err != nil {
			t.Fatal(err)
		}
		if status != http.StatusAccepted {
			t.Fatalf("Expecting status %d for %s, got %d", http.StatusAccepted, asJSON(body), status)
		}
	}
}

func TestFirmwareGetErrors(t *testing.T) {
	tenant := seedTenant(t, testService.service)
	other := seedTenant(t, testService.service)
	cl := testService.clientNoAuth

	// no key at all
	status, _, err := cl.RawGetWithHeader("/firmware?device_id="+tenant.deviceID.String(), nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}
	if !strings.Contains(err.Error(), "Access Denied. Unauthorized request") {
		t.Fatal("unexpected error:", err)
	}

	// a key that is not even a uuid
	status, _, err = cl.RawGetWithHeader("/firmware?device_id="+tenant.deviceID.String(),
		listHeaders("not-a-uuid"), nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}
	if !strings.Contains(err.Error(), "Access Denied. Invalid membership api key") {
		t.Fatal("unexpected error:", err)
	}

	// a well-formed key that belongs to no member
	status, _, err = cl.RawGetWithHeader("/firmware?device_id="+tenant.deviceID.String(),
		listHeaders("7d35b273-0476-4a5a-8bc5-3912ee677b47"), nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expecting status %d, got %d", http.StatusNotFound, status)
	}
	if !strings.Contains(err.Error(), "Member not found") {
		t.Fatal("unexpected error:", err)
	}

	// a device key authorizes the device role, not the member role
	status, _, _ = cl.RawGetWithHeader("/firmware?device_id="+tenant.deviceID.String(),
		map[string]string{DeviceKeyHeader: tenant.deviceKey}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}

	// no device id
	status, _, err = cl.RawGetWithHeader("/firmware", listHeaders(tenant.membershipKey), nil)
	if status != http.StatusBadRequest {
		t.Fatalf("Expecting status %d, got %d", http.StatusBadRequest, status)
	}
	if !strings.Contains(err.Error(), "No Device id provided") {
		t.Fatal("unexpected error:", err)
	}

	// a device id that is not a uuid
	status, _, err = cl.RawGetWithHeader("/firmware?device_id=42", listHeaders(tenant.membershipKey), nil)
	if status != http.StatusBadRequest {
		t.Fatalf("Expecting status %d, got %d", http.StatusBadRequest, status)
	}
	if !strings.Contains(err.Error(), "Invalid device id") {
		t.Fatal("unexpected error:", err)
	}

	// a device id that belongs to no device
	status, _, err = cl.RawGetWithHeader("/firmware?device_id=21f9af23-59cc-4b92-9b83-209b12a00dcf",
		listHeaders(tenant.membershipKey), nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expecting status %d, got %d", http.StatusNotFound, status)
	}
	if !strings.Contains(err.Error(), "Device not found") {
		t.Fatal("unexpected error:", err)
	}

	// a device of another project looks exactly like no device at all
	status, _, err = cl.RawGetWithHeader("/firmware?device_id="+other.deviceID.String(),
		listHeaders(tenant.membershipKey), nil)
	if status != http.StatusNotFound {
		t.Fatalf("Expecting status %d, got %d", http.StatusNotFound, status)
	}
	if !strings.Contains(err.Error(), "Device not found") {
		t.Fatal("unexpected error:", err)
	}
}

func TestFirmwareGetEmpty(t *testing.T) {
	tenant := seedTenant(t, testService.service)

	// a device without any events lists as an empty array, not null
	var raw []byte
	_, _, err := testService.clientNoAuth.RawGetWithHeader("/firmware?device_id="+tenant.deviceID.String(),
		listHeaders(tenant.membershipKey), &raw)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("Expecting empty array, got %s", string(raw))
	}
}
