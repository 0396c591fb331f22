package calsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrEventNotFound marks a remote event that no longer exists.
var ErrEventNotFound = errors.New("calendar event not found")

// CalendarAPI is the external calendar collaborator. The HTTP implementation
// talks to the configured calendar service; tests substitute a fake.
type CalendarAPI interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, id string, ev CalendarEvent) error
	DeleteEvent(ctx context.Context, id string) error
	GetEvent(ctx context.Context, id string) (*CalendarEvent, error)
	ListEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error)
}

type calendarClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
	limiter   <-chan time.Time
}

// NewCalendarClient builds the HTTP client from env. Every call is bounded by
// the client timeout; a rate limiter tick spaces requests out.
func NewCalendarClient() (CalendarAPI, error) {
	baseURL := strings.TrimSpace(os.Getenv("CALENDAR_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("CALENDAR_API_BASE_URL is required")
	}
	apiKey := strings.TrimSpace(os.Getenv("CALENDAR_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("CALENDAR_API_KEY is empty")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("CALENDAR_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("CALENDAR_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &calendarClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

func (c *calendarClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	<-c.limiter

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return ErrEventNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calendar api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil && len(respBody) > 0 {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

func (c *calendarClient) CreateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	var created CalendarEvent
	if err := c.do(ctx, http.MethodPost, "/v1/events", ev, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("calendar api returned no event id")
	}
	return created.ID, nil
}

func (c *calendarClient) UpdateEvent(ctx context.Context, id string, ev CalendarEvent) error {
	return c.do(ctx, http.MethodPut, "/v1/events/"+url.PathEscape(id), ev, nil)
}

func (c *calendarClient) DeleteEvent(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/v1/events/"+url.PathEscape(id), nil, nil)
	if err == ErrEventNotFound {
		// deleting an already-gone event is not a failure
		return nil
	}
	return err
}

func (c *calendarClient) GetEvent(ctx context.Context, id string) (*CalendarEvent, error) {
	var ev CalendarEvent
	if err := c.do(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(id), nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *calendarClient) ListEvents(ctx context.Context, from, to time.Time) ([]CalendarEvent, error) {
	params := url.Values{}
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))

	var out struct {
		Events []CalendarEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/events?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}
