package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/masabinhok/authgate/broadcast"
)

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// Client is the credential transport: it performs HTTP calls against the API
// origin with cookies attached, uniformly parses responses, and transparently
// resolves exactly one class of transient failure — access-token expiry —
// without callers needing to know.
//
// Client instances are configured during initialization through
// [Builder.Build] and treated as immutable afterwards. All methods are safe
// for concurrent use.
type Client struct {
	http    *http.Client
	origin  *url.URL
	cfg     Config
	bus     *broadcast.Bus
	log     *slog.Logger
	metrics *Metrics

	// refresh coalesces concurrent refresh attempts into one so several
	// requests hitting 401 in the same window cannot race the server's
	// single-use refresh-token rotation.
	refresh singleflight.Group
}

func newClient(cfg Config, hc *http.Client, bus *broadcast.Bus, logger *slog.Logger, metrics *Metrics) (*Client, error) {
	origin, err := url.Parse(cfg.APIOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid API origin: %w", err)
	}
	return &Client{
		http:    hc,
		origin:  origin,
		cfg:     cfg,
		bus:     bus,
		log:     logger,
		metrics: metrics,
	}, nil
}

// Get performs a GET request against path.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request against path with body serialized as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Do performs one logical request. A 2xx response with an empty or non-JSON
// body resolves to (nil, nil): callers must treat nil as "no structured
// payload", not an error. A 401 anywhere but the login path triggers a
// single coalesced refresh followed by at most one replay, governed by the
// configured retry budget; an irrecoverable 401 returns [ErrSessionExpired]
// after emitting exactly one auth-failure broadcast. Other non-2xx statuses
// return an [*APIError]; obtaining no response at all returns [ErrNetwork].
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if c == nil {
		return nil, ErrGateNotReady
	}
	if _, ok := allowedMethods[method]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}
	return c.do(ctx, method, path, payload, c.cfg.RetryBudget)
}

// do carries the retry budget explicitly. Each 401-triggered replay passes
// budget-1, which makes the at-most-once invariant structural: a second 401
// finds the budget at zero and terminates instead of refreshing again.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, budget int) (json.RawMessage, error) {
	status, respBody, err := c.roundTrip(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 200 && status < 300:
		if len(respBody) == 0 || !json.Valid(respBody) {
			return nil, nil
		}
		return json.RawMessage(respBody), nil

	case status == http.StatusUnauthorized:
		if path == c.cfg.LoginPath {
			// Credential error, not expiry. Never refresh here.
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, serverMessage(respBody, "login rejected"))
		}
		if budget <= 0 {
			c.metrics.Inc(MetricRetryExhausted)
			return nil, c.authFailure("unauthorized after retry")
		}
		if err := c.refreshTokens(ctx); err != nil {
			// The broadcast was emitted inside the coalesced refresh.
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return c.do(ctx, method, path, payload, budget-1)

	default:
		return nil, &APIError{Status: status, Message: serverMessage(respBody, "")}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Includes client timeouts: no response was obtained at all.
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return resp.StatusCode, respBody, nil
}

// refreshTokens performs the silent refresh. Concurrent callers are
// coalesced: only one refresh call reaches the server, everyone waits on the
// same outcome. The call runs on a detached context so a canceled waiter
// cannot fail the callers sharing the flight.
func (c *Client) refreshTokens(ctx context.Context) error {
	_, err, shared := c.refresh.Do("refresh", func() (any, error) {
		status, body, rtErr := c.roundTrip(context.WithoutCancel(ctx), http.MethodPost, c.cfg.RefreshPath, nil)
		if rtErr != nil {
			c.metrics.Inc(MetricRefreshFailure)
			c.broadcastAuthFailure("refresh unreachable")
			return nil, rtErr
		}
		if status < 200 || status >= 300 {
			c.metrics.Inc(MetricRefreshFailure)
			c.broadcastAuthFailure("refresh rejected")
			return nil, fmt.Errorf("refresh failed: %s", serverMessage(body, fmt.Sprintf("status %d", status)))
		}
		// Rotated tokens arrive via Set-Cookie and land in the jar; a JSON
		// body, when present, is only a fallback channel and needs no
		// handling here.
		c.metrics.Inc(MetricRefreshSuccess)
		return nil, nil
	})
	if shared {
		c.metrics.Inc(MetricRefreshCoalesced)
	}
	return err
}

func (c *Client) authFailure(reason string) error {
	c.broadcastAuthFailure(reason)
	return fmt.Errorf("%w: %s", ErrSessionExpired, reason)
}

func (c *Client) broadcastAuthFailure(reason string) {
	c.metrics.Inc(MetricAuthFailureBroadcast)
	c.log.Warn("authgate: session failure", slog.String("reason", reason))
	c.bus.Publish(broadcast.KindAuthFailure, reason)
}

func (c *Client) endpoint(path string) string {
	u := *c.origin
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// serverMessage extracts a best-effort message from a JSON error body. The
// server sends either a string or a list of strings under "message".
func serverMessage(body []byte, fallback string) string {
	var envelope struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Message) > 0 {
		var s string
		if json.Unmarshal(envelope.Message, &s) == nil && s != "" {
			return s
		}
		var list []string
		if json.Unmarshal(envelope.Message, &list) == nil && len(list) > 0 {
			return strings.Join(list, "; ")
		}
	}
	if fallback != "" {
		return fallback
	}
	return "request failed"
}
