package automation

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

// HTTPStatusError is a non-2xx answer from an automation webhook.
type HTTPStatusError struct {
	Route      string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("automation route %s returned %d", e.Route, e.StatusCode)
}

// HTTPSink posts each payload to {baseURL}/{route}, the way workflow tools
// expose one webhook per flow.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSink(baseURL string, timeout time.Duration) (*HTTPSink, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("automation base url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{baseURL: base, client: &http.Client{Timeout: timeout}}, nil
}

func (s *HTTPSink) Publish(ctx context.Context, route string, payload any) error {
	r, err := validRoute(route)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", r, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+r, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", r, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{Route: r, StatusCode: resp.StatusCode}
	}
	return nil
}

func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
