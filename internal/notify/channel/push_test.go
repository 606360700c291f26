package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"focusd/internal/notify"
	"focusd/internal/storage"
)

func TestHTTPPushDeliversJSON(t *testing.T) {
	var got pushBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := NewHTTPPush(time.Second)
	env := notify.NewEnvelope("u1", notify.DailyCheckPayload{OpenGoals: 2}, notify.ChannelPush)
	env.ID = "e1"
	sub := storage.PushSubscription{UserID: "u1", Endpoint: srv.URL}

	if err := p.Send(context.Background(), sub, env); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ID != "e1" || got.Type != "daily_check" {
		t.Fatalf("body = %+v", got)
	}
	if got.Title != "Daily check-in" {
		t.Fatalf("title = %q", got.Title)
	}
}

func TestHTTPPushGoneEndpoint(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		p := NewHTTPPush(time.Second)
		env := notify.NewEnvelope("u1", notify.SystemPayload{Message: "x"}, notify.ChannelPush)
		err := p.Send(context.Background(), storage.PushSubscription{UserID: "u1", Endpoint: srv.URL}, env)
		srv.Close()
		if !errors.Is(err, notify.ErrEndpointGone) {
			t.Fatalf("status %d: err = %v, want ErrEndpointGone", code, err)
		}
	}
}

func TestHTTPPushTransientFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPPush(time.Second)
	env := notify.NewEnvelope("u1", notify.SystemPayload{Message: "x"}, notify.ChannelPush)
	err := p.Send(context.Background(), storage.PushSubscription{UserID: "u1", Endpoint: srv.URL}, env)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, notify.ErrEndpointGone) {
		t.Fatal("503 must not be treated as permanent")
	}
}
