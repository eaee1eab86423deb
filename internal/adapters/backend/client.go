// Package backend is the HTTP adapter for the operations REST backend:
// credential login, secret changes, the employee directory and the biometric user list.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	apperrors "github.com/target/opsconsole/internal/errors"
	"github.com/target/opsconsole/internal/ports"
)

var (
	_ ports.AuthGateway     = (*Client)(nil)
	_ ports.DirectoryClient = (*Client)(nil)
	_ ports.UserDirectory   = (*Client)(nil)
)

// DefaultUsersExpression accepts both a bare array and a {"users": [...]} envelope.
const DefaultUsersExpression = "type(@) == 'array' && @ || users"

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 4 << 20

// Config captures what the client needs to talk to the backend.
type Config struct {
	BaseURL string
	// HTTPClient carries timeouts, cookies and auth; a 15s-timeout client is used when nil.
	HTTPClient *http.Client
	// UsersExpression is a JMESPath expression selecting the identity array from GET /users.
	UsersExpression string
	Logger          *slog.Logger
}

// Client implements the backend ports over HTTP+JSON.
type Client struct {
	base      *url.URL
	http      *http.Client
	usersExpr string
	logger    *slog.Logger
}

// NewClient builds a backend client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend base url must be http or https, got %q", base.Scheme)
	}
	if base.Path == "" {
		base.Path = "/"
	}

	expr := strings.TrimSpace(cfg.UsersExpression)
	if expr == "" {
		expr = DefaultUsersExpression
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile users expression %q: %w", expr, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:      base,
		http:      hc,
		usersExpr: expr,
		logger:    logger.With("component", "backend"),
	}, nil
}

type response struct {
	status int
	body   []byte
	etag   string
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

// do sends req and returns the status and body. Only transport failures are errors;
// status handling is left to the caller.
func (c *Client) do(ctx context.Context, req request) (response, error) {
	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return response{}, fmt.Errorf("encode %s %s: %w", req.method, req.path, err)
		}
		body = bytes.NewReader(data)
	}

	target := c.base.JoinPath(req.path)
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return response{}, fmt.Errorf("create %s %s request: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.WarnContext(ctx, "backend request failed",
			"method", req.method, "path", req.path, "error", err)
		return response{}, apperrors.MapTransportError(err, fmt.Sprintf("%s %s failed", req.method, req.path))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close response body", "error", cerr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, apperrors.MapTransportError(err, fmt.Sprintf("read %s %s response", req.method, req.path))
	}

	c.logger.DebugContext(ctx, "backend request",
		"method", req.method, "path", req.path, "status", resp.StatusCode, "duration", time.Since(start))
	return response{status: resp.StatusCode, body: data, etag: resp.Header.Get("ETag")}, nil
}

func decode[T any](resp response, what string) (T, error) {
	var out T
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return out, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "decode %s", what)
	}
	return out, nil
}

// errorMessage extracts a human-readable reason from a failed response:
// a JSON "message" or "error" field, else the trimmed text, else the status text.
func errorMessage(resp response) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.body, &payload); err == nil {
		if m := strings.TrimSpace(payload.Message); m != "" {
			return m
		}
		if m := strings.TrimSpace(payload.Error); m != "" {
			return m
		}
	}
	text := strings.TrimSpace(string(resp.body))
	if text != "" && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		const maxLen = 200
		if len(text) > maxLen {
			text = text[:maxLen]
		}
		return text
	}
	if st := http.StatusText(resp.status); st != "" {
		return st
	}
	return fmt.Sprintf("status %d", resp.status)
}
