package iam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/modelfleet/watsonx/internal/version"
)

// DefaultEndpoint is the IBM Cloud IAM token endpoint.
const DefaultEndpoint = "https://iam.cloud.ibm.com/identity/token"

const (
	grantType = "urn:ibm:params:oauth:grant-type:apikey"

	// safetyMargin keeps a token out of use once it is within five minutes
	// of expiry, so an in-flight generation call never outlives its bearer.
	safetyMargin = 5 * time.Minute

	// keyPrefixLen is how much of the raw API key is used as the cache key.
	// Enough to disambiguate distinct keys without holding the full secret
	// as a map key.
	keyPrefixLen = 12
)

// ExchangeError reports a non-success response from the IAM endpoint.
type ExchangeError struct {
	Status int
	Body   string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("iam: token exchange failed: status %d: %s", e.Status, e.Body)
}

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type entry struct {
	token     string
	expiresAt time.Time
}

// Cache exchanges API keys for bearer tokens and reuses them until they
// approach expiry. It is safe for concurrent use; racing callers on the same
// key may both perform an exchange, which is harmless because entries are
// replaced wholesale and exchanges are idempotent.
type Cache struct {
	endpoint   string
	httpClient HTTPClient
	log        *logrus.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewCache constructs a Cache against the given IAM endpoint. An empty
// endpoint defaults to DefaultEndpoint; a nil client gets a 30s timeout.
func NewCache(endpoint string, httpClient HTTPClient, logger *logrus.Logger) *Cache {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{
		endpoint:   endpoint,
		httpClient: httpClient,
		log:        logger,
		now:        time.Now,
		entries:    make(map[string]entry),
	}
}

// Token returns a bearer token for the API key, reusing a cached one while it
// is more than five minutes from expiry and exchanging otherwise.
func (c *Cache) Token(ctx context.Context, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", errors.New("iam: api key required")
	}

	key := fingerprint(apiKey)
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(e.expiresAt.Add(-safetyMargin)) {
		c.log.Debug("iam: reusing cached token")
		return e.token, nil
	}

	token, expiresAt, err := c.exchange(ctx, apiKey)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = entry{token: token, expiresAt: expiresAt}
	c.mu.Unlock()
	c.log.WithField("expires_at", expiresAt.Format(time.RFC3339)).Debug("iam: exchanged api key for token")
	return token, nil
}

func (c *Cache) exchange(ctx context.Context, apiKey string) (string, time.Time, error) {
	form := url.Values{
		"grant_type": {grantType},
		"apikey":     {apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("iam: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("iam: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, &ExchangeError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, fmt.Errorf("iam: decode response: %w", err)
	}
	if out.AccessToken == "" {
		return "", time.Time{}, errors.New("iam: response missing access_token")
	}
	return out.AccessToken, c.now().Add(time.Duration(out.ExpiresIn) * time.Second), nil
}

func fingerprint(apiKey string) string {
	if len(apiKey) <= keyPrefixLen {
		return apiKey
	}
	return apiKey[:keyPrefixLen]
}
