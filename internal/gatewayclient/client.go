// Package gatewayclient reads configuration from a crauti gateway admin API.
package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	internalerrors "github.com/rcourtman/crauti-dashboard/internal/errors"
	"github.com/rcourtman/crauti-dashboard/internal/logging"
	"github.com/rcourtman/crauti-dashboard/internal/transport"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is where a locally running gateway serves its admin API.
const DefaultBaseURL = "http://localhost:8181/api"

const (
	maxHTTPErrorBodyBytes = 4096
	maxBodyBytes          = 8 << 20
	defaultUserAgent      = "crauti-dashboard"
)

// Config holds configuration for the gateway client.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	UserAgent          string
	Logger             zerolog.Logger
	// HTTPClient overrides the default transport when set.
	HTTPClient *http.Client
}

// Client issues read-only requests against the admin API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	configErr  error
}

// Payload is a raw response body. The client does not interpret its shape.
type Payload struct {
	Body        []byte
	ContentType string
	Endpoint    string
	RequestID   string
}

// New creates a new gateway client.
func New(cfg Config) *Client {
	cfg, cfgErr := normalizeConfig(cfg)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(transport.Options{
			Timeout:            cfg.Timeout,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		})
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		configErr:  cfgErr,
	}
}

// BaseURL returns the normalized admin API base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// FetchConfig retrieves GET /config.
func (c *Client) FetchConfig(ctx context.Context) (Payload, error) {
	return c.get(ctx, "fetch_config", c.cfg.BaseURL+"/config")
}

// FetchConfigYAML retrieves GET /config/yaml.
func (c *Client) FetchConfigYAML(ctx context.Context) (Payload, error) {
	return c.get(ctx, "fetch_config_yaml", c.cfg.BaseURL+"/config/yaml")
}

// FetchMountPoints queries GET /mount-point. An empty host is left out of
// the query rather than sent as a placeholder.
func (c *Client) FetchMountPoints(ctx context.Context, path, host string) (Payload, error) {
	q := url.Values{}
	q.Set("path", path)
	if host = strings.TrimSpace(host); host != "" {
		q.Set("host", host)
	}
	return c.get(ctx, "fetch_mount_points", c.cfg.BaseURL+"/mount-point?"+q.Encode())
}

// Writeable reports whether the gateway can persist its config file.
func (c *Client) Writeable(ctx context.Context) (bool, error) {
	endpoint := c.cfg.BaseURL + "/config/writeable"
	payload, err := c.get(ctx, "fetch_writeable", endpoint)
	if err != nil {
		return false, err
	}

	var res struct {
		Writeable bool `json:"writeable"`
	}
	if err := json.Unmarshal(payload.Body, &res); err != nil {
		return false, internalerrors.WrapMalformed("fetch_writeable", endpoint, err)
	}
	return res.Writeable, nil
}

// Health checks the admin server's /health endpoint at the origin root.
func (c *Client) Health(ctx context.Context) error {
	if c.configErr != nil {
		return c.invalidConfig("health")
	}
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return internalerrors.NewSyncError(internalerrors.ErrorTypeValidation, "health", c.cfg.BaseURL, err)
	}
	u.Path = "/health"
	_, err = c.get(ctx, "health", u.String())
	return err
}

func (c *Client) get(ctx context.Context, op, endpoint string) (Payload, error) {
	if c.configErr != nil {
		return Payload{}, c.invalidConfig(op)
	}

	requestID := logging.RequestIDFromContext(ctx)
	if requestID == "" {
		ctx, requestID = logging.WithRequestID(ctx, "")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Payload{}, internalerrors.NewSyncError(internalerrors.ErrorTypeValidation, op, endpoint, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, application/x-yaml;q=0.9, */*;q=0.8")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", internalerrors.ErrTimeout, err)
		}
		return Payload{}, internalerrors.WrapUnreachable(op, endpoint, fmt.Errorf("do request: %w", err))
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.cfg.Logger.Warn().Err(closeErr).Str("endpoint", endpoint).Msg("Failed to close admin API response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Payload{}, internalerrors.WrapUnreachable(op, endpoint, formatHTTPStatusError(resp)).WithStatusCode(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Payload{}, internalerrors.WrapUnreachable(op, endpoint, fmt.Errorf("read body: %w", err))
	}

	logger := logging.ForRequest(ctx, c.cfg.Logger)
	logger.Debug().
		Str("op", op).
		Str("endpoint", endpoint).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("Admin API request completed")

	return Payload{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Endpoint:    endpoint,
		RequestID:   requestID,
	}, nil
}

func (c *Client) invalidConfig(op string) error {
	return internalerrors.NewSyncError(internalerrors.ErrorTypeValidation, op, c.cfg.BaseURL,
		fmt.Errorf("invalid gateway client configuration: %w", c.configErr))
}

func normalizeConfig(cfg Config) (Config, error) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}

	normalized, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return cfg, err
	}
	cfg.BaseURL = normalized
	return cfg, nil
}

func normalizeBaseURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid base URL scheme %q: must be http or https", parsed.Scheme)
	}

	if parsed.Hostname() == "" {
		return "", errors.New("invalid base URL: missing host")
	}
	if parsed.User != nil {
		return "", errors.New("invalid base URL: userinfo is not allowed")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", errors.New("invalid base URL: query and fragment are not allowed")
	}

	return strings.TrimRight(parsed.String(), "/"), nil
}

func formatHTTPStatusError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxHTTPErrorBodyBytes))
	if readErr != nil {
		return fmt.Errorf("responded with status %s (failed to read response body: %w)", resp.Status, readErr)
	}

	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return fmt.Errorf("responded with status %s", resp.Status)
	}
	return fmt.Errorf("responded with status %s: %s", resp.Status, detail)
}
