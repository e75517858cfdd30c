// Package loki provides a client to push log entries to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultJob is the job label attached to every stream.
const DefaultJob = "booking-intake"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters we avoid in label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// ErrNoBaseURL is returned when the client has no Loki address.
var ErrNoBaseURL = errors.New("loki: base URL is empty")

// Client pushes lines to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a Client for baseURL (e.g. http://localhost:3100). httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"), job: DefaultJob, http: httpClient}
}

// bookingFields is the subset of a booking event used for labels and timestamp.
type bookingFields struct {
	EventType string `json:"eventType"`
	Service   string `json:"service"`
	Doctor    string `json:"doctor"`
	CreatedAt string `json:"createdAt"`
}

// PushBookingJSON pushes a booking event (Kafka message value) labelled by event type, service and doctor.
// If parsing fails, the raw line is pushed with the current time and no extra labels.
func (c *Client) PushBookingJSON(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var f bookingFields
	if err := json.Unmarshal(raw, &f); err == nil {
		labels["event_type"] = f.EventType
		labels["service"] = f.Service
		labels["doctor"] = f.Doctor
		if t, err := time.Parse(time.RFC3339Nano, f.CreatedAt); err == nil {
			ts = t
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends a single log line. Empty label values are dropped.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if c.baseURL == "" {
		return ErrNoBaseURL
	}
	streamLabels := map[string]string{"job": c.job}
	for k, v := range labels {
		if sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	payload, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: streamLabels,
		Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
