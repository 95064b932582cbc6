// Package msr fetches event registration data from the MotorsportReg REST API.
package msr

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the MotorsportReg REST root.
	DefaultBaseURL = "https://api.motorsportreg.com/rest"
	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "pairings/1.0"
	// DefaultTimeout bounds each request when Config.Timeout is unset.
	DefaultTimeout = 30 * time.Second
)

// FetchError reports a failed request for one of an event's resources.
// StatusCode is zero when the request never got a response.
type FetchError struct {
	Resource   string
	EventID    string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s for event %s: http %d", e.Resource, e.EventID, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s for event %s: %v", e.Resource, e.EventID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchObserver is notified once per request with its duration and outcome.
type FetchObserver interface {
	ObserveFetch(resource string, elapsed time.Duration, err error)
}

// Config holds the connection settings for a Client.
type Config struct {
	BaseURL   string
	OrgID     string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
	Observer  FetchObserver // optional
}

// authTransport adds Basic Auth and the organization header to each request.
type authTransport struct {
	username  string
	password  string
	orgID     string
	userAgent string
	transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to a copy of req.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("X-Organization-Id", t.orgID)
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/xml")
	return t.transport.RoundTrip(req)
}

// Client is a client for the MotorsportReg event endpoints.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *slog.Logger
	observer FetchObserver
}

// NewClient creates a Client. Empty settings fall back to the package defaults.
func NewClient(logger *slog.Logger, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &authTransport{
				username:  cfg.Username,
				password:  cfg.Password,
				orgID:     cfg.OrgID,
				userAgent: cfg.UserAgent,
				transport: tr,
			},
		},
		logger:   logger,
		observer: cfg.Observer,
	}
}

// FetchAttendees returns the attendee items registered for an event.
func (c *Client) FetchAttendees(ctx context.Context, eventID string) ([]*Node, error) {
	return c.fetch(ctx, eventID, "attendees", "attendee")
}

// FetchAssignments returns the run group assignment items of an event.
func (c *Client) FetchAssignments(ctx context.Context, eventID string) ([]*Node, error) {
	return c.fetch(ctx, eventID, "assignments", "assignment")
}

func (c *Client) fetch(ctx context.Context, eventID, resource, element string) (items []*Node, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveFetch(resource, time.Since(start), err)
		}
	}()

	c.logger.Debug("Retrieving event records", "resource", resource, "event", eventID)

	u := fmt.Sprintf("%s/events/%s/%s", c.baseURL, url.PathEscape(eventID), resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Resource: resource, EventID: eventID, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Resource: resource, EventID: eventID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, &FetchError{
			Resource:   resource,
			EventID:    eventID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	doc, err := Parse(resp.Body)
	if err != nil {
		return nil, &FetchError{Resource: resource, EventID: eventID, Err: err}
	}
	items = doc.FindAll(element)
	c.logger.Debug("Found event records", "resource", resource, "count", len(items))
	return items, nil
}
