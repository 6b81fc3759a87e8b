// Package customers provides a client for the customer platform API.
package customers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds customer platform client configuration. An empty BaseURL
// disables the client.
type Config struct {
	BaseURL string        `envconfig:"CUSTOMERS_BASE_URL" default:""`
	APIKey  string        `envconfig:"CUSTOMERS_API_KEY" default:""`
	Timeout time.Duration `envconfig:"CUSTOMERS_TIMEOUT" default:"10s"`
}

// Client calls the customer platform. It satisfies the matching
// service's identity check.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a customer platform client.
func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Exists reports whether the customer is registered on the platform.
func (c *Client) Exists(ctx context.Context, customerID string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/customers/"+customerID, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	switch httpResp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return false, fmt.Errorf("customer api error: status=%d body=%s", httpResp.StatusCode, string(respBody))
	}
}
