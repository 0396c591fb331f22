package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func pushGatewayFor(t *testing.T, status int) PushGateway {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("PUSH_GATEWAY_URL", srv.URL)
	gw, err := NewPushGateway()
	if err != nil {
		t.Fatalf("NewPushGateway: %v", err)
	}
	return gw
}

func TestPushGateway_ClassifiesResponses(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   DeliveryStatus
	}{
		{"accepted", http.StatusCreated, DeliverySuccess},
		{"endpoint gone", http.StatusGone, DeliveryPermanentFailure},
		{"endpoint unknown", http.StatusNotFound, DeliveryPermanentFailure},
		{"server error", http.StatusInternalServerError, DeliveryTransientFailure},
		{"throttled", http.StatusTooManyRequests, DeliveryTransientFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := pushGatewayFor(t, tc.status)
			got, _ := gw.Deliver(context.Background(), "https://push.example/ep", PushKeys{}, PushPayload{Title: "t"})
			if got != tc.want {
				t.Errorf("status %d classified as %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestPushGateway_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // force connection refused

	t.Setenv("PUSH_GATEWAY_URL", srv.URL)
	gw, err := NewPushGateway()
	if err != nil {
		t.Fatalf("NewPushGateway: %v", err)
	}

	got, err := gw.Deliver(context.Background(), "https://push.example/ep", PushKeys{}, PushPayload{})
	if got != DeliveryTransientFailure {
		t.Errorf("network error classified as %v, want transient", got)
	}
	if err == nil {
		t.Error("expected an error for a refused connection")
	}
}

func TestMessageGateway_DeliverPostsContent(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("MESSAGE_GATEWAY_URL", srv.URL+"/v1/messages")
	gw, err := NewMessageGateway()
	if err != nil {
		t.Fatalf("NewMessageGateway: %v", err)
	}
	if err := gw.Deliver(context.Background(), "+34600000001", "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("posted to %q", gotPath)
	}
}

func TestFanOutResult_Succeeded(t *testing.T) {
	if (FanOutResult{}).Succeeded() {
		t.Error("zero deliveries is not a success")
	}
	if !(FanOutResult{Delivered: 1, Pruned: 2, Transient: 3}).Succeeded() {
		t.Error("one delivered endpoint makes the dispatch a success")
	}
	if (FanOutResult{Pruned: 4}).Succeeded() {
		t.Error("pruned endpoints alone are not a success")
	}
}
