package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/buildlens/delivery-intake/internal/delivery"
	"github.com/buildlens/delivery-intake/internal/session"
)

// newTestSession creates a session manager on a temp file, preloaded with tokens.
func newTestSession(t *testing.T, tokens *session.Tokens) *session.Manager {
	t.Helper()
	m, err := session.NewManager(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens != nil {
		if err := m.Set(*tokens); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return m
}

// newTestClient creates a Client pointing at a test HTTP server.
func newTestClient(server *httptest.Server, sess *session.Manager) *Client {
	return &Client{
		httpClient: server.Client(),
		baseURL:    server.URL,
		session:    sess,
	}
}

func TestAttachesBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer acc-1" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		json.NewEncoder(w).Encode(delivery.Delivery{ID: "d-1"})
	}))
	defer server.Close()

	sess := newTestSession(t, &session.Tokens{Access: "acc-1", Refresh: "ref-1"})
	client := newTestClient(server, sess)

	d, err := client.GetDelivery(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != "d-1" {
		t.Errorf("expected d-1, got %s", d.ID)
	}
}

func TestRefreshRetrySucceeds(t *testing.T) {
	var refreshCalls, deliveryCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["refresh"] != "ref-old" {
			t.Errorf("unexpected refresh token: %q", body["refresh"])
		}
		json.NewEncoder(w).Encode(map[string]string{"access": "acc-new", "refresh": "ref-new"})
	})
	mux.HandleFunc("/deliveries/d-1", func(w http.ResponseWriter, r *http.Request) {
		deliveryCalls.Add(1)
		if r.Header.Get("Authorization") == "Bearer acc-old" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer acc-new" {
			t.Errorf("retry did not carry new access token: %q", got)
		}
		json.NewEncoder(w).Encode(delivery.Delivery{ID: "d-1", Status: delivery.StatusDelivered})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sess := newTestSession(t, &session.Tokens{Access: "acc-old", Refresh: "ref-old"})
	client := newTestClient(server, sess)

	d, err := client.GetDelivery(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Status != delivery.StatusDelivered {
		t.Errorf("unexpected status: %s", d.Status)
	}

	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh endpoint called %d times, want 1", got)
	}
	if got := deliveryCalls.Load(); got != 2 {
		t.Errorf("delivery endpoint called %d times, want 2 (original + retry)", got)
	}

	tokens, ok := sess.Current()
	if !ok || tokens.Access != "acc-new" || tokens.Refresh != "ref-new" {
		t.Errorf("token pair not replaced wholesale: %+v", tokens)
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	var deliveryCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
	})
	mux.HandleFunc("/deliveries/d-1", func(w http.ResponseWriter, r *http.Request) {
		deliveryCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sess := newTestSession(t, &session.Tokens{Access: "acc-old", Refresh: "ref-old"})
	client := newTestClient(server, sess)

	_, err := client.GetDelivery(context.Background(), "d-1")
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}

	if got := deliveryCalls.Load(); got != 1 {
		t.Errorf("delivery endpoint called %d times, want 1 (no retry after failed refresh)", got)
	}
	if _, ok := sess.Current(); ok {
		t.Error("expected tokens to be cleared")
	}
}

func TestSecond401IsNotRefreshedAgain(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"access": "acc-new", "refresh": "ref-new"})
	})
	mux.HandleFunc("/deliveries/d-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized) // always expired
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sess := newTestSession(t, &session.Tokens{Access: "acc-old", Refresh: "ref-old"})
	client := newTestClient(server, sess)

	_, err := client.GetDelivery(context.Background(), "d-1")
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh endpoint called %d times, want exactly 1", got)
	}
}

func TestNon2xxReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "delivery not found", http.StatusNotFound)
	}))
	defer server.Close()

	sess := newTestSession(t, &session.Tokens{Access: "acc", Refresh: "ref"})
	client := newTestClient(server, sess)

	_, err := client.GetDelivery(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", apiErr.Status)
	}
}

func TestNo5xxRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	sess := newTestSession(t, &session.Tokens{Access: "acc", Refresh: "ref"})
	client := newTestClient(server, sess)

	_, err := client.GetDelivery(context.Background(), "d-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 call for a 5xx, got %d", got)
	}
}

func TestPostStatusBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deliveries/d-9/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "rejected" || body["comment"] != "broken pallets" {
			t.Errorf("unexpected body: %+v", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sess := newTestSession(t, &session.Tokens{Access: "acc", Refresh: "ref"})
	client := newTestClient(server, sess)

	if err := client.PostStatus(context.Background(), "d-9", delivery.StatusRejected, "broken pallets"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
