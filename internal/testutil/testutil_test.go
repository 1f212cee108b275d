package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestNewLocalRequest(t *testing.T) {
	t.Parallel()

	req := NewLocalRequest(http.MethodGet, "/debug/tail")
	if !strings.HasPrefix(req.RemoteAddr, "127.0.0.1:") {
		t.Errorf("RemoteAddr = %q, want loopback", req.RemoteAddr)
	}
	if req.URL.Path != "/debug/tail" {
		t.Errorf("path = %q", req.URL.Path)
	}
}

func TestNewJSONRequest(t *testing.T) {
	t.Parallel()

	req := NewJSONRequest(http.MethodPost, "/api/command", `{"command":"FWD"}`)
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rec.WriteString(`{"outcome":"sent"}`)
	got := DecodeJSON[map[string]string](t, rec)
	if got["outcome"] != "sent" {
		t.Errorf("outcome = %q", got["outcome"])
	}
}
