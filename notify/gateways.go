package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DeliveryStatus is the push gateway verdict for one endpoint.
type DeliveryStatus int

const (
	DeliverySuccess DeliveryStatus = iota
	// DeliveryPermanentFailure means the endpoint is gone for good; the
	// subscription gets pruned.
	DeliveryPermanentFailure
	// DeliveryTransientFailure leaves the subscription intact for the next attempt.
	DeliveryTransientFailure
)

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushGateway is the external web-push collaborator.
type PushGateway interface {
	Deliver(ctx context.Context, endpoint string, keys PushKeys, payload PushPayload) (DeliveryStatus, error)
}

// MessageGateway is the external instant-messaging collaborator.
type MessageGateway interface {
	Deliver(ctx context.Context, address string, content string) error
}

type httpPushGateway struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewPushGateway() (PushGateway, error) {
	url := strings.TrimSpace(os.Getenv("PUSH_GATEWAY_URL"))
	if url == "" {
		return nil, errors.New("PUSH_GATEWAY_URL is required")
	}
	return &httpPushGateway{
		url:    url,
		apiKey: strings.TrimSpace(os.Getenv("PUSH_GATEWAY_API_KEY")),
		http:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *httpPushGateway) Deliver(ctx context.Context, endpoint string, keys PushKeys, payload PushPayload) (DeliveryStatus, error) {
	body, err := json.Marshal(map[string]interface{}{
		"endpoint": endpoint,
		"keys":     keys,
		"payload":  payload,
	})
	if err != nil {
		return DeliveryPermanentFailure, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return DeliveryTransientFailure, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return DeliveryTransientFailure, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return DeliverySuccess, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// the push service says this endpoint no longer exists
		return DeliveryPermanentFailure, fmt.Errorf("push gateway %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	default:
		return DeliveryTransientFailure, fmt.Errorf("push gateway %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}

type httpMessageGateway struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewMessageGateway() (MessageGateway, error) {
	url := strings.TrimSpace(os.Getenv("MESSAGE_GATEWAY_URL"))
	if url == "" {
		return nil, errors.New("MESSAGE_GATEWAY_URL is required")
	}
	return &httpMessageGateway{
		url:    url,
		apiKey: strings.TrimSpace(os.Getenv("MESSAGE_GATEWAY_API_KEY")),
		http:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *httpMessageGateway) Deliver(ctx context.Context, address string, content string) error {
	body, err := json.Marshal(map[string]string{
		"to":      address,
		"content": content,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("message gateway %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
