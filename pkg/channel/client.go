package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/inventory-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/inventory-sync/pkg/errors"
	"github.com/angelmondragon/inventory-sync/pkg/logger"
)

const (
	accessTokenHeader = "X-Channel-Access-Token"
	setLevelPath      = "/inventory_levels/set.json"
	maxErrorBody      = 4 << 10
)

var (
	errBaseURLRequired     = errors.New("channel api base url is required")
	errAccessTokenRequired = errors.New("channel access token is required")
)

// SetInventoryLevelRequest sets the absolute available quantity for one item
// at one location.
type SetInventoryLevelRequest struct {
	LocationID      string `json:"location_id"`
	InventoryItemID string `json:"inventory_item_id"`
	Available       int    `json:"available"`
}

// APIError is a non-2xx response from the channel.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("channel api returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the sales channel's inventory API.
type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client
	logger      *logger.Logger
}

func NewClient(cfg config.ChannelConfig, logg *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     base,
		accessToken: token,
		http:        &http.Client{Timeout: timeout},
		logger:      logg,
	}, nil
}

// SetInventoryLevel issues an absolute set. Errors are *pkgerrors.Error with
// a code derived from the response status; use IsRetryable to decide whether
// a retry can help.
func (c *Client) SetInventoryLevel(ctx context.Context, req SetInventoryLevelRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode inventory level")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+setLevelPath, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build inventory level request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(accessTokenHeader, c.accessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log(ctx, "set inventory level", req, err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "channel set inventory level failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	c.log(ctx, "set inventory level", req, apiErr)
	return pkgerrors.Wrap(domainCodeForStatus(resp.StatusCode), apiErr, "channel set inventory level failed").
		WithDetails(map[string]any{"status": resp.StatusCode})
}

// IsRetryable reports whether a failed call may succeed if repeated.
// Transport failures, 5xx and 429 are retryable; other 4xx are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).Retryable
	}
	return true
}

func (c *Client) log(ctx context.Context, op string, req SetInventoryLevelRequest, err error) {
	if c.logger == nil {
		return
	}
	ctx = c.logger.WithFields(ctx, map[string]any{
		"operation":         op,
		"inventory_item_id": req.InventoryItemID,
		"location_id":       req.LocationID,
		"available":         req.Available,
	})
	c.logger.Warn(ctx, fmt.Sprintf("channel %s failed: %v", op, err))
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
