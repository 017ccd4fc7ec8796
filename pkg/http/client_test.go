package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetJSONDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("query symbol = %q", got)
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"60000.12"}`))
	}))
	defer srv.Close()

	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	c := NewClient(WithTimeout(2 * time.Second))
	err := c.GetJSON(context.Background(), srv.URL, map[string][]string{"symbol": {"BTCUSDT"}}, nil, &out)
	if err != nil {
		t.Fatalf("get json: %v", err)
	}
	if out.Price != "60000.12" {
		t.Fatalf("price = %q", out.Price)
	}
}

func TestNonOKSurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := NewClient()
	err := c.GetJSON(context.Background(), srv.URL, nil, nil, &struct{}{})
	if err == nil {
		t.Fatalf("expected error")
	}
	hint, limited := IsRateLimited(err)
	if !limited {
		t.Fatalf("expected rate-limit classification, got %v", err)
	}
	if hint != 7*time.Second {
		t.Fatalf("retry hint = %v, want 7s", hint)
	}
}

func TestIsRateLimitedIgnoresOtherStatuses(t *testing.T) {
	if _, limited := IsRateLimited(&StatusError{Code: 503}); limited {
		t.Fatalf("503 should not classify as rate limited")
	}
	if _, limited := IsRateLimited(context.Canceled); limited {
		t.Fatalf("non-status errors should not classify")
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	if got := parseRetryAfter("30"); got != 30*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Fatalf("empty should be zero, got %v", got)
	}
	if got := parseRetryAfter("garbage"); got != 0 {
		t.Fatalf("unparseable should be zero, got %v", got)
	}
}
