package events

import (
	"net/http"
	"testing"
)

func TestVersion(t *testing.T) {
	status, _, _ := testService.clientNoAuth.RawGetWithHeader("/fwevents/version", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("Expecting status %d, got %d", http.StatusUnauthorized, status)
	}

	version := map[string]string{}
	if _, err := testService.client.RawGet("/fwevents/version", &version); err != nil {
		t.Fatal(err)
	}
	if version["version"] != "unset" {
		t.Fatal("unexpected version:", version["version"])
	}

	Version = "1.2.3"
	defer func() { Version = "unset" }()
	if _, err := testService.client.RawGet("/fwevents/version", &version); err != nil {
		t.Fatal(err)
	}
	if version["version"] != "1.2.3" {
		t.Fatal("unexpected version:", version["version"])
	}
}
