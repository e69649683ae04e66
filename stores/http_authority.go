package stores

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

	"github.com/sony/gobreaker"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/logger"
)

// HTTPAuthority talks to a remote permission service. It serves both as a
// PermissionSource and as the RemoteChecker behind CheckBulkRemote. Calls go
// through a circuit breaker so a failing authority is not hammered.
//
//	GET  {base}/subjects/{id}/permissions        -> {"permissions": [...]}
//	POST {base}/subjects/{id}/permissions/check  {"requests": [...]} -> BulkCheckResult
type HTTPAuthority struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
	header  http.Header
}

type HTTPAuthorityOption func(*HTTPAuthority)

func WithHTTPClient(c *http.Client) HTTPAuthorityOption {
	return func(a *HTTPAuthority) { a.client = c }
}

func WithAuthorityLogger(l logger.Logger) HTTPAuthorityOption {
	return func(a *HTTPAuthority) { a.logger = l }
}

// WithHeader adds a header to every request, e.g. an Authorization token.
func WithHeader(key, value string) HTTPAuthorityOption {
	return func(a *HTTPAuthority) { a.header.Set(key, value) }
}

// BreakerSettings tunes the circuit breaker. Zero values use defaults: trip
// after 5 consecutive failures, stay open for 30s.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

func NewHTTPAuthority(baseURL string, timeout time.Duration, bs BreakerSettings, opts ...HTTPAuthorityOption) *HTTPAuthority {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	a := &HTTPAuthority{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: logger.NewNullLogger(),
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "permit-authority",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Info("authority circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return a
}

// State reports the breaker state ("closed", "half-open" or "open").
func (a *HTTPAuthority) State() string {
	return a.breaker.State().String()
}

func (a *HTTPAuthority) subjectURL(subjectID, suffix string) string {
	return a.base + "/subjects/" + url.PathEscape(subjectID) + suffix
}

type permissionsResponse struct {
	Permissions []permit.EffectivePermission `json:"permissions"`
}

type bulkCheckRequest struct {
	Requests []permit.CheckRequest `json:"requests"`
}

func (a *HTTPAuthority) GetEffectivePermissions(ctx context.Context, subjectID string) ([]permit.EffectivePermission, error) {
	var out permissionsResponse
	if err := a.do(ctx, http.MethodGet, a.subjectURL(subjectID, "/permissions"), nil, &out); err != nil {
		return nil, err
	}
	return out.Permissions, nil
}

func (a *HTTPAuthority) BulkCheck(ctx context.Context, subjectID string, reqs []permit.CheckRequest) (*permit.BulkCheckResult, error) {
	var out permit.BulkCheckResult
	if err := a.do(ctx, http.MethodPost, a.subjectURL(subjectID, "/permissions/check"), bulkCheckRequest{Requests: reqs}, &out); err != nil {
		return nil, err
	}
	if out.SubjectID == "" {
		out.SubjectID = subjectID
	}
	return &out, nil
}

func (a *HTTPAuthority) do(ctx context.Context, method, target string, body, dst any) error {
	_, err := a.breaker.Execute(func() (any, error) {
		var rd io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			rd = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return nil, err
		}
		for k, vs := range a.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%s %s: status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return nil, json.NewDecoder(resp.Body).Decode(dst)
	})
	return err
}
