package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"personachat/internal/config"
)

const apiVersion = "2024-08-13"

// Client talks to the scheduling provider's REST API. Transient transport
// failures are retried with a bounded exponential backoff configured per
// client, not hidden in shared state.
type Client struct {
	apiBase     string
	apiKey      string
	eventTypeID int
	maxRetries  int
	httpClient  *http.Client
}

// Slot is one bookable start time, always in UTC.
type Slot struct {
	Time time.Time `json:"time"`
}

// Booking is the confirmation returned by the provider.
type Booking struct {
	ID    int64     `json:"id"`
	UID   string    `json:"uid"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
}

// Attendee identifies who the meeting is booked for.
type Attendee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	TimeZone string `json:"timeZone"`
}

// BookingRequest creates a booking at an exact UTC start time.
type BookingRequest struct {
	Start       time.Time         `json:"start"`
	EventTypeID int               `json:"eventTypeId"`
	Attendee    Attendee          `json:"attendee"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type slotsEnvelope struct {
	Status string `json:"status"`
	Data   struct {
		Slots map[string][]Slot `json:"slots"`
	} `json:"data"`
}

type bookingEnvelope struct {
	Status string  `json:"status"`
	Data   Booking `json:"data"`
}

// NewClient builds a scheduling client from config.
func NewClient(cfg config.CalendarConfig) *Client {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.cal.com/v2"
	}
	return &Client{
		apiBase:     apiBase,
		apiKey:      cfg.APIKey,
		eventTypeID: cfg.EventTypeID,
		maxRetries:  cfg.MaxRetries,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// AvailableSlots fetches bookable start times between start and end.
func (c *Client) AvailableSlots(ctx context.Context, start, end time.Time) (map[string][]Slot, error) {
	query := url.Values{
		"eventTypeId": {strconv.Itoa(c.eventTypeID)},
		"startTime":   {start.UTC().Format(time.RFC3339)},
		"endTime":     {end.UTC().Format(time.RFC3339)},
	}
	var envelope slotsEnvelope
	if err := c.do(ctx, http.MethodGet, "/slots/available?"+query.Encode(), nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("slots lookup returned status %q", envelope.Status)
	}
	return envelope.Data.Slots, nil
}

// CreateBooking commits a booking with the provider.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	req.EventTypeID = c.eventTypeID
	var envelope bookingEnvelope
	if err := c.do(ctx, http.MethodPost, "/bookings", req, &envelope); err != nil {
		return nil, err
	}
	if envelope.Status != "success" {
		return nil, fmt.Errorf("booking returned status %q", envelope.Status)
	}
	return &envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.apiKey == "" {
		return errors.New("calendar api key not configured")
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			log.Warn().
				Str("path", path).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("retrying calendar request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("calendar request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("cal-api-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &apiError{status: resp.StatusCode, body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("calendar api error: %d", e.status)
	var envelope struct {
		Message string `json:"message"`
		Err     string `json:"error"`
	}
	if json.Unmarshal([]byte(e.body), &envelope) == nil {
		if envelope.Message != "" {
			return msg + ": " + envelope.Message
		}
		if envelope.Err != "" {
			return msg + ": " + envelope.Err
		}
	}
	if e.body != "" {
		return msg + ": " + e.body
	}
	return msg
}

func isRetryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == http.StatusBadGateway ||
			apiErr.status == http.StatusServiceUnavailable ||
			apiErr.status == http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
