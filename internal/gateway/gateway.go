// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway implements the HTTP request gateway for the NanoChat
// backend.
//
// The gateway builds one authenticated JSON or multipart request, executes
// it, decodes the typed response, and normalizes every failure into the
// four-kind taxonomy in errors.go. It does not retry, cache, or rate-limit;
// those policies belong to its callers.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Configuration constants for backend requests.
const (
	// requestTimeout bounds a single request/response exchange.
	requestTimeout = 30 * time.Second

	// resourceTimeout bounds the total lifetime of one resource fetch,
	// including redirects and body reads.
	resourceTimeout = 300 * time.Second

	// maxResponseSize is the maximum allowed response body size.
	maxResponseSize = 10 * 1024 * 1024

	// defaultUserAgent identifies the client to the backend.
	defaultUserAgent = "nanochat-go/1.0"
)

// =============================================================================
// CLIENT
// =============================================================================

// Config configures a gateway client.
type Config struct {
	// BaseURL is the backend root, e.g. "https://nano.example.com/api".
	BaseURL string

	// APIKey is attached as a bearer token when non-empty. Requests go out
	// unauthenticated otherwise; the server enforces access.
	APIKey string

	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Logger receives request/response events. Bodies and headers are
	// never logged.
	Logger zerolog.Logger
}

// Client executes requests against the NanoChat backend. The base URL and
// API key may be swapped at runtime (config hot reload); requests already
// in flight keep the values they started with.
type Client struct {
	mu        sync.RWMutex
	baseURL   string
	apiKey    string
	userAgent string

	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a gateway client from the given configuration.
func NewClient(cfg Config) *Client {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: ua,
		httpClient: &http.Client{
			Timeout: resourceTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: cfg.Logger.With().Str("component", "gateway").Logger(),
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

// UpdateCredentials swaps the backend root and API key. Subsequent requests
// use the new values.
func (c *Client) UpdateCredentials(baseURL, apiKey string) {
	c.mu.Lock()
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	c.apiKey = strings.TrimSpace(apiKey)
	c.mu.Unlock()
	c.logger.Info().Str("base_url", baseURL).Msg("gateway credentials updated")
}

// =============================================================================
// REQUEST CONSTRUCTION
// =============================================================================

// endpointURL composes the full URL for an endpoint path and query.
func (c *Client) endpointURL(path string, query url.Values) (string, error) {
	full := c.BaseURL() + "/" + strings.TrimPrefix(path, "/")
	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// newRequest builds an authenticated request with an optional JSON body.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	endpoint, err := c.endpointURL(path, query)
	if err != nil {
		return nil, &CompositionError{Endpoint: path, Err: err}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &CompositionError{Endpoint: path, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &CompositionError{Endpoint: path, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(req)
	return req, nil
}

// setCommonHeaders attaches the User-Agent and bearer token.
func (c *Client) setCommonHeaders(req *http.Request) {
	c.mu.RLock()
	key := c.apiKey
	c.mu.RUnlock()

	req.Header.Set("User-Agent", c.userAgent)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// =============================================================================
// EXECUTION
// =============================================================================

// execute runs the request inside the per-request timeout and returns the
// status code and size-limited body. Statuses outside [200,299] come back
// as a StatusError with the exact code.
func (c *Client) execute(req *http.Request) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Dur("duration", time.Since(start)).
			Err(err).
			Msg("request failed")
		return 0, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Err: err}
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request complete")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil, &StatusError{
			Code:    resp.StatusCode,
			Message: extractErrorMessage(resp.StatusCode, body),
		}
	}

	return resp.StatusCode, body, nil
}

// readBody reads a response body with the size ceiling applied.
func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) == maxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", maxResponseSize)
	}
	return body, nil
}

// =============================================================================
// TYPED HELPERS
// =============================================================================

// doJSON executes a JSON request and decodes the typed response body.
// On any failure the zero value of T is returned, never a partial decode.
func doJSON[T any](ctx context.Context, c *Client, method, path string, query url.Values, body interface{}) (T, error) {
	var zero T

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return zero, err
	}

	_, respBody, err := c.execute(req)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(respBody, &out); err != nil {
		return zero, &DecodeError{Err: err}
	}
	return out, nil
}

// doStatus executes a request whose response body is discarded; only the
// status confirmation matters.
func (c *Client) doStatus(ctx context.Context, method, path string, query url.Values, body interface{}) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	_, _, err = c.execute(req)
	return err
}

// =============================================================================
// MULTIPART & BINARY UPLOADS
// =============================================================================

// MultipartFile is the file part of a multipart/form-data upload.
type MultipartFile struct {
	Field    string
	Filename string
	MIME     string
	Data     []byte
}

// doMultipart uploads one file plus scalar fields as multipart/form-data
// and decodes the typed response.
func doMultipart[T any](ctx context.Context, c *Client, path string, file MultipartFile, fields map[string]string) (T, error) {
	var zero T

	endpoint, err := c.endpointURL(path, nil)
	if err != nil {
		return zero, &CompositionError{Endpoint: path, Err: err}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
	header.Set("Content-Type", file.MIME)
	part, err := w.CreatePart(header)
	if err != nil {
		return zero, &CompositionError{Endpoint: path, Err: err}
	}
	if _, err := part.Write(file.Data); err != nil {
		return zero, &CompositionError{Endpoint: path, Err: err}
	}

	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return zero, &CompositionError{Endpoint: path, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return zero, &CompositionError{Endpoint: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return zero, &CompositionError{Endpoint: path, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setCommonHeaders(req)

	_, respBody, err := c.execute(req)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(respBody, &out); err != nil {
		return zero, &DecodeError{Err: err}
	}
	return out, nil
}

// doBinary uploads a raw file body with the filename carried in the
// x-filename header, as the storage endpoint expects.
func doBinary[T any](ctx context.Context, c *Client, path, filename, mime string, data []byte) (T, error) {
	var zero T

	endpoint, err := c.endpointURL(path, nil)
	if err != nil {
		return zero, &CompositionError{Endpoint: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return zero, &CompositionError{Endpoint: path, Err: err}
	}
	req.Header.Set("Content-Type", mime)
	req.Header.Set("x-filename", filename)
	c.setCommonHeaders(req)

	_, respBody, err := c.execute(req)
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(respBody, &out); err != nil {
		return zero, &DecodeError{Err: err}
	}
	return out, nil
}
