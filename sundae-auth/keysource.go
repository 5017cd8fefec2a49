package sundaeauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxKeySetBytes bounds how much of a JWKS response is read.
const maxKeySetBytes = 1 << 20

// KeySource returns the raw JSON Web Key Set of the identity provider.
type KeySource interface {
	Fetch(ctx context.Context) (json.RawMessage, error)
}

// HTTPKeySource fetches a JWKS document over HTTP.
type HTTPKeySource struct {
	URL    string
	Client *http.Client
}

func NewHTTPKeySource(url string, timeout time.Duration) *HTTPKeySource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPKeySource{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPKeySource) Fetch(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %v: %v", ErrKeySourceUnavailable, s.URL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %v: %v", ErrKeySourceUnavailable, s.URL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %v returned %v", ErrKeySourceRateLimited, s.URL, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: %v returned %v", ErrKeySourceUnavailable, s.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %v: %v", ErrKeySourceUnavailable, s.URL, err)
	}
	return body, nil
}

// StaticKeySource serves a fixed key set.
type StaticKeySource json.RawMessage

func (s StaticKeySource) Fetch(context.Context) (json.RawMessage, error) {
	return json.RawMessage(s), nil
}
