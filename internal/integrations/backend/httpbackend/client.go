package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/BearBump/LoanBox/internal/integrations/backend"
	"github.com/BearBump/LoanBox/internal/models"
)

const maxBodyBytes = 4 << 20

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	limiter *rate.Limiter
}

// New builds a client for the backend REST API. requestsPerSecond <= 0
// disables client-side throttling.
func New(baseURL, token string, requestsPerSecond float64, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *Client) FetchRecord(ctx context.Context, kind models.Kind, externalID string) (json.RawMessage, error) {
	resource, ok := backend.Resource(kind)
	if !ok {
		return nil, errors.Errorf("unsupported kind %q", kind)
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u = u.JoinPath("api", resource, externalID)
	u.Path += "/"

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(backend.ErrNotFound, "%s %s", kind, externalID)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrap(backend.ErrRateLimited, "http 429")
	case resp.StatusCode/100 != 2:
		return nil, errors.Errorf("backend http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return unwrap(body)
}

// unwrap strips a {"data": {...}} envelope when the outer object is not a
// record itself.
func unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	inner, hasData := outer["data"]
	_, hasID := outer["id"]
	if hasData && !hasID && bytes.HasPrefix(bytes.TrimSpace(inner), []byte("{")) {
		return inner, nil
	}
	return json.RawMessage(body), nil
}
