package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/resources"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetries  = 3
	defaultBackoff  = 500 * time.Millisecond
	maxBackoff      = 8 * time.Second
	resourcesPrefix = "/api/v1/resources"
)

// httpAdapter speaks the cluster's REST API. Transient failures are
// retried with exponential backoff inside the call; permanent
// rejections surface immediately.
type httpAdapter struct {
	fabric  *fabrics.Fabric
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *zerolog.Logger
}

// HTTPOption configures the HTTP adapter.
type HTTPOption func(*httpAdapter)

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *httpAdapter) { a.client = c }
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int) HTTPOption {
	return func(a *httpAdapter) { a.retries = n }
}

// WithBackoff sets the initial retry backoff.
func WithBackoff(d time.Duration) HTTPOption {
	return func(a *httpAdapter) { a.backoff = d }
}

// NewHTTP returns an Adapter for the fabric's cluster endpoint.
func NewHTTP(fabric *fabrics.Fabric, logger *zerolog.Logger, opts ...HTTPOption) Adapter {
	a := &httpAdapter{
		fabric:  fabric,
		client:  &http.Client{Timeout: defaultTimeout},
		retries: defaultRetries,
		backoff: defaultBackoff,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *httpAdapter) Fetch(ctx context.Context) (map[resources.Ref]*resources.Document, error) {
	body, err := a.do(ctx, http.MethodGet, resourcesPrefix, "", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []*resources.Document `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.WrapParse("json", "cluster resource list", err)
	}

	out := make(map[resources.Ref]*resources.Document, len(payload.Items))
	for _, doc := range payload.Items {
		if err := doc.Validate(); err != nil {
			return nil, fmt.Errorf("cluster returned malformed resource: %w", err)
		}
		out[doc.Ref()] = doc
	}
	return out, nil
}

func (a *httpAdapter) Apply(ctx context.Context, doc *resources.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = a.do(ctx, http.MethodPut, refPath(doc.Ref()), doc.Ref().String(), body)
	return err
}

func (a *httpAdapter) Delete(ctx context.Context, ref resources.Ref) error {
	_, err := a.do(ctx, http.MethodDelete, refPath(ref), ref.String(), nil)
	if errors.IsNotFound(err) {
		return nil
	}
	return err
}

// do runs one request with bounded retries on transient failures.
func (a *httpAdapter) do(ctx context.Context, method, path, resource string, body []byte) ([]byte, error) {
	backoff := a.backoff
	var lastErr error

	for attempt := 0; attempt <= a.retries; attempt++ {
		if attempt > 0 {
			a.logger.Debug().
				Str("fabric", a.fabric.ID).
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt).
				Msg("retrying cluster call")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		out, err := a.once(ctx, method, path, resource, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (a *httpAdapter) once(ctx context.Context, method, path, resource string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(a.fabric.ClusterURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.fabric.ClusterToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.fabric.ClusterToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Network failures and timeouts are transient.
		return nil, errors.NewClusterError(strings.ToLower(method), resource, 0, err.Error(), true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errors.NewClusterError(strings.ToLower(method), resource, resp.StatusCode, err.Error(), true)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NewNotFoundError("cluster resource", resource)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.NewClusterError(strings.ToLower(method), resource, resp.StatusCode, apiMessage(data), true)
	default:
		// 4xx: the cluster rejected the request for good.
		return nil, errors.NewClusterError(strings.ToLower(method), resource, resp.StatusCode, apiMessage(data), false)
	}
}

func refPath(ref resources.Ref) string {
	return resourcesPrefix + "/" + url.PathEscape(strings.ToLower(string(ref.Kind))) + "/" + url.PathEscape(ref.Name)
}

// apiMessage extracts the error body the cluster API returns, falling
// back to the raw body.
func apiMessage(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}
