package inventory

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
)

type revalidator interface {
	Revalidate(ctx context.Context, tags []string) error
}

// HTTPRevalidator posts cache tags to the storefront's revalidation hook.
type HTTPRevalidator struct {
	url    string
	client *http.Client
}

func NewHTTPRevalidator(url string, timeout time.Duration) (*HTTPRevalidator, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("revalidate url is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRevalidator{url: url, client: &http.Client{Timeout: timeout}}, nil
}

func (r *HTTPRevalidator) Revalidate(ctx context.Context, tags []string) error {
	body, err := json.Marshal(map[string]any{"tags": tags})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("revalidate cache: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("revalidate cache: status %d", resp.StatusCode)
	}
	return nil
}
