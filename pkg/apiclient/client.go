// Package apiclient talks to the CasaDeEle REST backend (orders, payment
// verification, coupon validation).
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casadeele/storefront/pkg/config"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/logger"
	"github.com/casadeele/storefront/pkg/metrics"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	breakerName     = "casadeele-api"
	maxErrorBodyLen = 4 << 10
)

var errServerStatus = errors.New("server error status")

// Options configures a Client.
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	// Transport defaults to http.DefaultTransport; it is always wrapped for tracing.
	Transport http.RoundTripper
	Metrics   *metrics.UpstreamMetrics
	Logger    *logger.Logger
}

// OptionsFromConfig maps the API config section onto client options.
func OptionsFromConfig(cfg config.APIConfig) Options {
	return Options{
		BaseURL:            cfg.BaseURL,
		Timeout:            cfg.Timeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}
}

// Client is the Get/Send helper every backend call goes through.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	metrics *metrics.UpstreamMetrics
	logg    *logger.Logger
}

type response struct {
	status int
	body   []byte
}

// StatusError carries a non-2xx answer from the backend.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend answered %d", e.Status)
	}
	return fmt.Sprintf("backend answered %d: %s", e.Status, e.Message)
}

// New builds a Client; BaseURL is required.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 5
	}
	if opts.BreakerOpenTimeout <= 0 {
		opts.BreakerOpenTimeout = 30 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	c := &Client{
		base: base,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		metrics: opts.Metrics,
		logg:    opts.Logger,
	}

	maxFailures := opts.BreakerMaxFailures
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up says nothing about backend health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.metrics.SetBreakerState(name, int(to))
			if c.logg != nil {
				ctx := c.logg.WithFields(context.Background(), map[string]any{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
				c.logg.Warn(ctx, "apiclient.breaker.state_change")
			}
		},
	})

	return c, nil
}

// Get issues a GET and decodes a 2xx JSON answer into dest (which may be nil).
func (c *Client) Get(ctx context.Context, path string, dest any) error {
	return c.Send(ctx, http.MethodGet, path, nil, dest)
}

// Send issues a request with an optional JSON body and decodes a 2xx JSON answer into dest.
//
// Errors are typed: network failures, 5xx answers and an open breaker map to
// CodeDependency; 4xx answers map to CodeUpstream (CodeUnauthorized for 401)
// and carry a *StatusError with the backend message.
func (c *Client) Send(ctx context.Context, method, path string, body, dest any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request body")
		}
		payload = encoded
	}

	endpoint := c.base.JoinPath(path)
	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.do(ctx, method, endpoint.String(), payload)
	})
	status := 0
	if resp != nil {
		status = resp.status
	}
	c.metrics.ObserveRequest(path, status, time.Since(start))
	c.logRequest(ctx, method, path, status, time.Since(start))

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backend unavailable")
	case errors.Is(err, errServerStatus):
		statusErr := statusError(resp)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, statusErr, "backend error").
			WithDetails(map[string]any{"status": resp.status})
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backend request failed")
	}

	if resp.status >= 300 {
		statusErr := statusError(resp)
		code := pkgerrors.CodeUpstream
		if resp.status == http.StatusUnauthorized {
			code = pkgerrors.CodeUnauthorized
		}
		msg := statusErr.Message
		if msg == "" {
			msg = http.StatusText(resp.status)
		}
		return pkgerrors.Wrap(code, statusErr, msg).WithDetails(map[string]any{"status": resp.status})
	}

	if dest == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode backend response")
	}
	return nil
}

// do performs one round trip; only transport failures and 5xx answers count against the breaker.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	out := &response{status: res.StatusCode, body: data}
	if res.StatusCode >= http.StatusInternalServerError {
		return out, errServerStatus
	}
	return out, nil
}

func (c *Client) logRequest(ctx context.Context, method, path string, status int, elapsed time.Duration) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"upstream_method": method,
		"upstream_path":   path,
		"upstream_status": status,
		"duration_ms":     elapsed.Milliseconds(),
	})
	c.logg.Debug(ctx, "apiclient.request")
}

func statusError(resp *response) *StatusError {
	if resp == nil {
		return &StatusError{}
	}
	return &StatusError{Status: resp.status, Message: backendMessage(resp.body)}
}

// backendMessage pulls a human readable message out of an error body.
func backendMessage(body []byte) string {
	var envelope struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		var asString string
		if err := json.Unmarshal(envelope.Error, &asString); err == nil && asString != "" {
			return asString
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyLen {
		text = text[:maxErrorBodyLen]
	}
	return text
}

// Status extracts the backend HTTP status from err, or 0 when the request never got an answer.
func Status(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}
