package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/roman-kulish/eis-ingest/internal/eis"
	"github.com/roman-kulish/eis-ingest/internal/ingest"
)

// WithHTTPClient replaces the HTTP client used for requests
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		c.hc = hc
	}
}

// Client calls the ingestion protocol over HTTP. Faults sent by the server
// are returned as *ingest.Fault, so callers handle them exactly like faults
// of an in-process service.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a client for the server at baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, options ...func(*Client)) *Client {
	c := Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

func (c *Client) StartSession(ctx context.Context, meta *eis.Metadata) (eis.Ack, error) {
	return c.call(ctx, http.MethodPost, "/v1/sessions", meta)
}

func (c *Client) PushSample(ctx context.Context, id string, sample *eis.Sample) (eis.Ack, error) {
	return c.call(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(id)+"/samples", sample)
}

func (c *Client) EndSession(ctx context.Context, id string) (eis.Ack, error) {
	return c.call(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil)
}

// Health queries the health endpoint of the server.
func (c *Client) Health(ctx context.Context) (health Health, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return health, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return health, fmt.Errorf("sending request: %w", err)
	}
	defer closeWithError(resp.Body, &err)

	if resp.StatusCode != http.StatusOK {
		return health, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err = json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return health, fmt.Errorf("decoding health: %w", err)
	}
	return health, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any) (ack eis.Ack, err error) {
	var payload io.Reader
	if body != nil {
		p, err := json.Marshal(body)
		if err != nil {
			return ack, fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(p)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return ack, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return ack, fmt.Errorf("sending request: %w", err)
	}
	defer closeWithError(resp.Body, &err)

	switch resp.StatusCode {
	case http.StatusOK:
		if err = json.NewDecoder(resp.Body).Decode(&ack); err != nil {
			return ack, fmt.Errorf("decoding ack: %w", err)
		}
		return ack, nil

	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusInternalServerError:
		var fault ingest.Fault
		if dErr := json.NewDecoder(resp.Body).Decode(&fault); dErr != nil || fault.Kind == "" {
			return ack, fmt.Errorf("unexpected status %s", resp.Status)
		}
		return ack, &fault

	default:
		return ack, fmt.Errorf("unexpected status %s", resp.Status)
	}
}

func closeWithError(cl io.Closer, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
