package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

const (
	restPath     = "/rest/v1/"
	pingAttempts = 3
)

// Config holds backend client configuration.
type Config struct {
	// URL is the project base URL, without the /rest/v1/ suffix.
	URL string

	// Key is the anonymous API key, sent as both the apikey header and
	// the bearer token.
	Key string

	// Timeout bounds each request. Zero means 10 seconds.
	Timeout time.Duration
}

// Client talks to the hosted backend's query interface over HTTP. All
// calls go through a circuit breaker so an unreachable backend trips
// open instead of stacking timed-out requests from the polling loop.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

var _ Querier = (*Client)(nil)

// New creates a backend client. The API key is a JWT; it is inspected
// (without signature verification, the secret lives server-side) to
// fail fast on malformed keys and to log keys that have expired.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	if err := inspectKey(cfg.Key); err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A missing row is a normal answer, not a backend fault.
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("backend breaker state changed")
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}, nil
}

// inspectKey parses the API key as an unverified JWT and logs its role
// and expiry. An expired key is logged loudly but not rejected; the
// backend is the authority on whether it still works.
func inspectKey(key string) error {
	if key == "" {
		return fmt.Errorf("backend key is required")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return fmt.Errorf("backend key is not a valid token: %w", err)
	}

	role, _ := claims["role"].(string)
	exp, err := claims.GetExpirationTime()
	if err == nil && exp != nil {
		if time.Now().After(exp.Time) {
			log.Warn().Str("role", role).Time("expired_at", exp.Time).Msg("backend key has expired")
		} else {
			log.Debug().Str("role", role).Time("expires_at", exp.Time).Msg("backend key inspected")
		}
	}

	return nil
}

// Ping probes the query endpoint, retrying with exponential backoff.
// Used once at startup before any session work begins.
func (c *Client) Ping(ctx context.Context) error {
	op := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+restPath, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		c.setHeaders(req)

		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusInternalServerError {
			return struct{}{}, fmt.Errorf("backend returned HTTP %d", resp.StatusCode)
		}

		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(pingAttempts),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Debug().Str("url", c.cfg.URL).Msg("backend reachable")

	return nil
}

// Select decodes all rows matching the filters into dest.
func (c *Client) Select(ctx context.Context, table string, filters Filters, dest any) error {
	query := encodeFilters(filters)
	query.Set("select", "*")

	body, err := c.do(ctx, http.MethodGet, restPath+table, query, nil, "")
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode %s rows: %w", table, err)
	}

	return nil
}

// Insert writes a single record.
func (c *Client) Insert(ctx context.Context, table string, record any) error {
	_, err := c.do(ctx, http.MethodPost, restPath+table, nil, record, "return=minimal")
	return err
}

// Update patches the named fields on every row matching the filters and
// returns the matched row count. Callers that include an expected-value
// predicate in the filters get a conditional write: zero matched rows
// means the predicate no longer held.
func (c *Client) Update(ctx context.Context, table string, filters Filters, fields map[string]any) (int, error) {
	body, err := c.do(ctx, http.MethodPatch, restPath+table, encodeFilters(filters), fields, "return=representation")
	if err != nil {
		return 0, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode %s update result: %w", table, err)
	}

	return len(rows), nil
}

// Rpc invokes a named remote procedure with keyword arguments.
func (c *Client) Rpc(ctx context.Context, name string, args map[string]any, dest any) error {
	body, err := c.do(ctx, http.MethodPost, restPath+"rpc/"+name, nil, args, "")
	if err != nil {
		return err
	}

	if dest == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("failed to decode rpc %s result: %w", name, err)
	}

	return nil
}

// do performs one request through the circuit breaker and returns the
// response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, prefer string) ([]byte, error) {
	u := c.cfg.URL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	started := time.Now()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("backend returned HTTP %d: %s", resp.StatusCode, truncate(data, 200))
		}

		return data, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		log.Debug().
			Err(err).
			Str("method", method).
			Str("path", path).
			Dur("duration", time.Since(started)).
			Msg("backend request failed")

		return nil, err
	}

	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.cfg.Key)
	req.Header.Set("Authorization", "Bearer "+c.cfg.Key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// encodeFilters renders equality predicates in the query interface's
// col=eq.value form.
func encodeFilters(filters Filters) url.Values {
	query := url.Values{}
	for col, val := range filters {
		query.Set(col, "eq."+val)
	}
	return query
}

func truncate(data []byte, n int) string {
	s := strings.TrimSpace(string(data))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
