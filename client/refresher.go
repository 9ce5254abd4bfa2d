package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// TokenPair is the credential state held by a [Coordinator]. RefreshToken is
// empty in a refresh answer when the server does not rotate.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Refresher exchanges a refresh token for new credentials.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
}

// RefresherFunc adapts a function to [Refresher].
type RefresherFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// Refresh implements [Refresher].
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return f(ctx, refreshToken)
}

// HTTPRefresher posts to the refresh endpoint of the blog API. Its Client
// must not use the Coordinator as transport.
type HTTPRefresher struct {
	BaseURL string
	Path    string
	Client  *http.Client
}

// Refresh implements [Refresher].
func (h *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	path := h.Path
	if path == "" {
		path = "/auth/refresh"
	}
	hc := h.Client
	if hc == nil {
		hc = http.DefaultClient
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return TokenPair{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(h.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return TokenPair{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return TokenPair{}, &StatusError{StatusCode: resp.StatusCode, Code: e.Code}
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return TokenPair{}, err
	}
	if pair.AccessToken == "" {
		return TokenPair{}, &StatusError{StatusCode: resp.StatusCode, Code: "empty_access_token"}
	}
	return pair, nil
}
