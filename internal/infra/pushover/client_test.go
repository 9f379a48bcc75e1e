package pushover_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"drive-in/internal/infra/pushover"
)

func TestClient_Notify(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		got = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"title":   r.PostForm.Get("title"),
			"message": r.PostForm.Get("message"),
		}
		w.Write([]byte(`{"status":1}`))
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("app-token", "user-key", "", server.URL)
	if err := client.Notify(context.Background(), "New order abc: Zinger. Total Rs. 450"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	want := map[string]string{
		"token":   "app-token",
		"user":    "user-key",
		"title":   "Drive-In",
		"message": "New order abc: Zinger. Total Rs. 450",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestClient_NotifyDisabled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("", "", "", server.URL)
	if client.Enabled() {
		t.Error("client without credentials should be disabled")
	}
	if err := client.Notify(context.Background(), "ignored"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if calls.Load() != 0 {
		t.Error("disabled client must not call the API")
	}
}

func TestClient_NotifyRejected(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"user":"invalid"}`))
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("app-token", "bad-user", "", server.URL)
	if err := client.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("bad request should not be retried, got %d calls", calls.Load())
	}
}
