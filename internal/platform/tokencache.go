package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// tokenSkew is the minimum remaining validity a cached token must carry to
// be handed out (spec §4.1: "cached in-process until >=1 minute before expiry").
const tokenSkew = 60 * time.Second

// tokenCache holds the single installation's current token. Sized 1: this
// client ever authenticates as one installation, but expirable.LRU gives us
// time-based eviction (55 minutes after insertion; reads do not extend it)
// for free rather than hand-rolling a timer.
type tokenCache struct {
	lru   *lru.LRU[int64, *installationToken]
	group singleflight.Group
}

func newTokenCache() *tokenCache {
	return &tokenCache{
		lru: lru.NewLRU[int64, *installationToken](1, nil, 55*time.Minute),
	}
}

// Token returns a cached installation token with at least tokenSkew of
// remaining validity, minting a fresh one if needed. Concurrent callers for
// the same installation collapse into a single mint+exchange call.
func (c *Client) Token(ctx context.Context) (string, error) {
	if tok, ok := c.tokens.lru.Get(c.installationID); ok && tok.validFor(tokenSkew) {
		return tok.token, nil
	}

	key := fmt.Sprintf("installation:%d", c.installationID)
	v, err, _ := c.tokens.group.Do(key, func() (interface{}, error) {
		if tok, ok := c.tokens.lru.Get(c.installationID); ok && tok.validFor(tokenSkew) {
			return tok, nil
		}
		tok, err := c.mintAndExchange(ctx)
		if err != nil {
			return nil, err
		}
		c.tokens.lru.Add(c.installationID, tok)
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*installationToken).token, nil
}

type exchangeResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// mintAndExchange signs a fresh app JWT and exchanges it for an installation
// access token. This call bypasses the circuit breaker and rate limiter: it
// is the prerequisite for every other call, not one more outbound request to
// throttle against itself.
func (c *Client) mintAndExchange(ctx context.Context) (*installationToken, error) {
	jwtStr, err := appJWT(c.appID, c.privateKey)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.baseURL, c.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("platform: build token exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtStr)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp.StatusCode, resp.Header, body)
	}

	var parsed exchangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("platform: decode token exchange response: %w", err)
	}
	return &installationToken{token: parsed.Token, expiresAt: parsed.ExpiresAt}, nil
}
