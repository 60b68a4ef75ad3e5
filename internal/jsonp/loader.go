package jsonp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Loader retrieves the script a src attribute points at.
type Loader interface {
	Load(ctx context.Context, src string) ([]byte, error)
}

type HTTPLoader struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewHTTPLoader(timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   1 << 20,
	}
}

func (l *HTTPLoader) Load(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/javascript, text/javascript, */*")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("script returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
