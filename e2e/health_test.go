package e2e

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t, "")

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %v", result["status"])
	}
	if result["service"] != "Remotion Pro Video Service" {
		t.Errorf("unexpected service %v", result["service"])
	}
	if result["engine"] != "simulated" {
		t.Errorf("expected engine 'simulated', got %v", result["engine"])
	}
}

func TestUnknownRoute(t *testing.T) {
	ta := setupApp(t, "")

	resp, err := doRequest(ta.app, http.MethodGet, "/nope", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)

	result := parseJSON(t, resp)
	if result["status"] != "error" || result["code"] != "NOT_FOUND" {
		t.Errorf("expected error envelope, got %v", result)
	}
}
