package client

import (
	"net/http"
	"os"
	"testing"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/fwevents/core/access"
)

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}

func testRouter() *mux.Router {
	router := mux.NewRouter()

	type echo struct {
		Role   string `json:"role"`
		Header string `json:"header"`
		Body   string `json:"body"`
	}

	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Body string `json:"body"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		e := echo{
			Header: r.Header.Get("X-Test-Header"),
			Body:   body.Body,
		}
		if auth := access.AuthorizationFromContext(r.Context()); auth != nil && len(auth.Roles) > 0 {
			e.Role = auth.Roles[0]
		}
		jsonData, _ := json.Marshal(e)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		}
		w.Write(jsonData)
	}).Methods(http.MethodGet, http.MethodPost, http.MethodPut)

	router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	router.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such thing", http.StatusNotFound)
	}).Methods(http.MethodGet)

	return router
}

func TestClientRequests(t *testing.T) {

	cl := NewWithRouter(testRouter())

	var result struct {
		Role   string `json:"role"`
		Header string `json:"header"`
		Body   string `json:"body"`
	}

	status, err := cl.RawGet("/echo", &result)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK {
		t.Fatalf("Expecting status %d, got %d", http.StatusOK, status)
	}

	status, err = cl.RawPost("/echo", map[string]string{"body": "hello"}, &result)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusCreated || result.Body != "hello" {
		t.Fatal("unexpected result:", status, result.Body)
	}

	status, err = cl.RawPut("/echo", map[string]string{"body": "world"}, &result)
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusOK || result.Body != "world" {
		t.Fatal("unexpected result:", status, result.Body)
	}

	status, err = cl.RawDelete("/echo")
	if err != nil {
		t.Fatal(err)
	}
	if status != http.StatusNoContent {
		t.Fatalf("Expecting status %d, got %d", http.StatusNoContent, status)
	}

	status, err = cl.RawGet("/missing", nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if status != http.StatusNotFound {
		t.Fatalf("Expecting status %d, got %d", http.StatusNotFound, status)
	}
}

func TestClientHeadersAndAuthorization(t *testing.T) {

	cl := NewWithRouter(testRouter())

	var result struct {
		Role   string `json:"role"`
		Header string `json:"header"`
	}

	// default headers travel with every request
	_, err := cl.WithHeader("X-Test-Header", "present").RawGet("/echo", &result)
	if err != nil {
		t.Fatal(err)
	}
	if result.Header != "present" {
		t.Fatal("header did not travel:", result.Header)
	}

	// authorization is injected into the request context
	_, err = cl.WithAdminAuthorization().RawGet("/echo", &result)
	if err != nil {
		t.Fatal(err)
	}
	if result.Role != "admin" {
		t.Fatal("unexpected role:", result.Role)
	}

	_, err = cl.WithRole("member").RawGet("/echo", &result)
	if err != nil {
		t.Fatal(err)
	}
	if result.Role != "member" {
		t.Fatal("unexpected role:", result.Role)
	}
}
