package iam

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelfleet/watsonx/internal/testutil"
)

func newIAMServer(t *testing.T, calls *atomic.Int64, expiresIn int) *testutil.Server {
	t.Helper()
	return testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != grantType {
			t.Errorf("grant_type = %q, want %q", got, grantType)
		}
		if r.PostForm.Get("apikey") == "" {
			t.Error("apikey form field missing")
		}
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d}`, n, expiresIn)
	}))
}

func TestTokenCachedWithinSafetyMargin(t *testing.T) {
	var calls atomic.Int64
	server := newIAMServer(t, &calls, 3600)

	cache := NewCache(server.URL+"/identity/token", nil, nil)

	tok1, err := cache.Token(context.Background(), "apikey-alpha")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	tok2, err := cache.Token(context.Background(), "apikey-alpha")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("second call returned %q, want cached %q", tok2, tok1)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exchange calls = %d, want 1", got)
	}
}

func TestTokenReexchangedNearExpiry(t *testing.T) {
	var calls atomic.Int64
	server := newIAMServer(t, &calls, 3600)

	cache := NewCache(server.URL+"/identity/token", nil, nil)
	if _, err := cache.Token(context.Background(), "apikey-alpha"); err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	// Advance the clock to four minutes before expiry, inside the margin.
	cache.now = func() time.Time { return time.Now().Add(3600*time.Second - 4*time.Minute) }
	if _, err := cache.Token(context.Background(), "apikey-alpha"); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("exchange calls = %d, want 2", got)
	}
}

func TestTokenDistinctKeysDistinctEntries(t *testing.T) {
	var calls atomic.Int64
	server := newIAMServer(t, &calls, 3600)

	cache := NewCache(server.URL+"/identity/token", nil, nil)
	tokA, err := cache.Token(context.Background(), "apikey-alpha-0123456789")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	tokB, err := cache.Token(context.Background(), "apikey-bravo-0123456789")
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tokA == tokB {
		t.Errorf("distinct keys returned the same token %q", tokA)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("exchange calls = %d, want 2", got)
	}
}

func TestTokenExchangeFailure(t *testing.T) {
	var calls atomic.Int64
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errorCode":"BXNIM0415E","errorMessage":"Provided API key could not be found"}`))
	}))

	cache := NewCache(server.URL+"/identity/token", nil, nil)
	_, err := cache.Token(context.Background(), "apikey-bogus")
	if err == nil {
		t.Fatal("Token() expected error for 400, got nil")
	}
	var xerr *ExchangeError
	if !errors.As(err, &xerr) {
		t.Fatalf("error = %T, want *ExchangeError", err)
	}
	if xerr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", xerr.Status)
	}
	if !strings.Contains(xerr.Body, "BXNIM0415E") {
		t.Errorf("body = %q, want IAM error code", xerr.Body)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exchange calls = %d, want 1 (no retry)", got)
	}
}

func TestTokenEmptyAPIKey(t *testing.T) {
	cache := NewCache("http://127.0.0.1:1/identity/token", nil, nil)
	if _, err := cache.Token(context.Background(), "  "); err == nil {
		t.Error("Token() expected error for blank api key, got nil")
	}
}

func TestTokenCancellation(t *testing.T) {
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	cache := NewCache(server.URL+"/identity/token", nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := cache.Token(ctx, "apikey-alpha"); err == nil {
		t.Error("Token() expected error for cancelled context, got nil")
	}
}
