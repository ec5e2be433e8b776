// Package platform is the Platform Client (C1): authenticated, rate-limit
// aware access to the Platform's REST surface, with installation-token
// issuance and caching (spec §4.1).
package platform

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/kubilitics/policy-engine/internal/apperr"
	"github.com/kubilitics/policy-engine/internal/pkg/metrics"
)

// defaultBaseURL is the public Platform API; test harnesses override it.
const defaultBaseURL = "https://api.github.com"

const (
	defaultTimeout     = 30 * time.Second
	fileContentTimeout = 60 * time.Second
)

// PlatformAPI is the outbound call surface every other component depends on
// (spec §4.1), kept as an interface so C5/C6/C7/C9 can be tested against a
// fake without a mock HTTP server.
type PlatformAPI interface {
	ListOrgRepositories(ctx context.Context, org string) ([]Repository, error)
	GetRepository(ctx context.Context, platformRepositoryID int64) (*Repository, error)
	GetFileContent(ctx context.Context, fullName, path string) (*FileContent, error)
	FileExists(ctx context.Context, fullName, path string) (bool, error)
	GetWorkflowPermissions(ctx context.Context, fullName string) (*WorkflowPermissions, error)
	CreateIssue(ctx context.Context, fullName, title, body string, labels []string) (*Issue, error)
	ListOpenIssuesByLabel(ctx context.Context, fullName, label string) ([]Issue, error)
	ArchiveRepository(ctx context.Context, fullName string) error
	CommentOnPullRequest(ctx context.Context, fullName string, number int64, body string) error
	ListPullRequestComments(ctx context.Context, fullName string, number int64) ([]PullRequestComment, error)
	UpsertStatusCheck(ctx context.Context, fullName, sha, context_, description string, state StatusCheckState) error
	IsTeamMember(ctx context.Context, org, teamSlug, login string) (bool, error)
}

// Client implements PlatformAPI against the real Platform REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string

	appID          int64
	installationID int64
	org            string
	privateKey     *rsa.PrivateKey

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	tokens  *tokenCache
}

// Config carries the credentials described in spec §6's GitHubApp__* keys.
type Config struct {
	AppID          int64
	PrivateKeyPEM  string
	InstallationID int64
	Organization   string
	BaseURL        string // optional override for tests
}

// New builds a Client. It parses the PEM private key eagerly: the teacher's
// open question about tolerating a missing dependency until first use is
// explicitly resolved here in favor of required, validated dependencies.
func New(cfg Config, transport http.RoundTripper) (*Client, error) {
	key, err := parsePrivateKey([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return nil, err
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "platform-client",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(float64(to))
		},
	})

	return &Client{
		httpClient:     &http.Client{Transport: otelhttp.NewTransport(transport), Timeout: defaultTimeout},
		baseURL:        baseURL,
		appID:          cfg.AppID,
		installationID: cfg.InstallationID,
		org:            cfg.Organization,
		privateKey:     key,
		breaker:        breaker,
		limiter:        rate.NewLimiter(rate.Every(time.Second/10), 20), // independent of Platform's own limit
		tokens:         newTokenCache(),
	}, nil
}

// do performs one authenticated request through the rate limiter and
// circuit breaker, retrying 5xx with backoff (spec §4.1).
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, timeout time.Duration) ([]byte, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("platform: rate limiter: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second

	result, err := backoff.Retry(reqCtx, func() (*rawResponse, error) {
		token, err := c.Token(reqCtx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		breakerResult, err := c.breaker.Execute(func() (interface{}, error) {
			req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("platform: build request: %w", err))
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Accept", "application/vnd.github+json")
			req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			recordRateLimitRemaining(resp.Header)

			if resp.StatusCode >= 500 {
				return nil, fmt.Errorf("platform: server error %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return nil, backoff.Permanent(c.classifyStatus(resp.StatusCode, resp.Header, data))
			}
			return &rawResponse{body: data, header: resp.Header}, nil
		})
		if err != nil {
			return nil, err
		}
		return breakerResult.(*rawResponse), nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(5),
	)
	if err != nil {
		if e, ok := apperr.As(err); ok {
			return nil, nil, e
		}
		return nil, nil, apperr.Wrap(apperr.CodePlatformServerError, "platform request failed after retries", err)
	}
	return result.body, result.header, nil
}

type rawResponse struct {
	body   []byte
	header http.Header
}

// classifyStatus maps a non-2xx response into the apperr taxonomy (spec §4.1, §7).
func (c *Client) classifyStatus(status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusNotFound:
		return apperr.New(apperr.CodePlatformNotFound, "resource not found")
	case status == http.StatusTooManyRequests || isSecondaryRateLimit(status, body):
		return apperr.RateLimited(retryAfterSeconds(header), fmt.Errorf("status %d", status))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.New(apperr.CodePlatformAuthFailure, fmt.Sprintf("platform auth failure: status %d", status))
	default:
		return apperr.New(apperr.CodePlatformServerError, fmt.Sprintf("unexpected status %d", status))
	}
}

// isSecondaryRateLimit detects GitHub's secondary rate-limit signal: a 403
// whose body mentions a secondary limit (spec §9: "unify both into
// PlatformRateLimited").
func isSecondaryRateLimit(status int, body []byte) bool {
	if status != http.StatusForbidden {
		return false
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	return containsFold(parsed.Message, "secondary rate limit") || containsFold(parsed.Message, "abuse")
}

func containsFold(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexFold(haystack, needle) >= 0
}

func indexFold(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if equalFold(s[i:i+m], substr) {
			return i
		}
	}
	return -1
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func retryAfterSeconds(header http.Header) int {
	if v := header.Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func decodeJSON(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("platform: decode response: %w", err)
	}
	return nil
}
