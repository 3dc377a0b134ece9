package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPFetcherSendsHeadersAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "ticker-test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, Relay{}, 0)
	body, err := f.Fetch(context.Background(), Request{URL: srv.URL, Headers: map[string]string{"User-Agent": "ticker-test"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "<html>ok</html>" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestHTTPFetcherStatusErrors(t *testing.T) {
	cases := []struct {
		code      int
		retryable bool
	}{
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.code)
		}))

		_, err := NewHTTPFetcher(time.Second, Relay{}, 0).Fetch(context.Background(), Request{URL: srv.URL})
		srv.Close()

		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("status %d: expected *FetchError, got %v", c.code, err)
		}
		if fe.Kind != FetchHTTPStatus || fe.StatusCode != c.code {
			t.Fatalf("status %d: unexpected error %+v", c.code, fe)
		}
		if IsRetryable(err) != c.retryable {
			t.Fatalf("status %d: retryable = %v, want %v", c.code, !c.retryable, c.retryable)
		}
	}
}

func TestHTTPFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPFetcher(5*time.Second, Relay{}, 0).Fetch(ctx, Request{URL: srv.URL})
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != FetchTimeout {
		t.Fatalf("expected timeout FetchError, got %v", err)
	}
	if !IsRetryable(err) {
		t.Fatalf("timeouts should be retryable")
	}
}

func TestHTTPFetcherRelay(t *testing.T) {
	const target = "https://www.reuters.com/markets/companies/AAPL.O/profile"
	var gotKey, gotURL string
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("api_key")
		gotURL = r.URL.Query().Get("url")
		_, _ = w.Write([]byte("relayed"))
	}))
	defer relay.Close()

	f := NewHTTPFetcher(time.Second, Relay{URL: relay.URL + "/v1/", APIKey: "secret"}, 0)

	body, err := f.Fetch(context.Background(), Request{URL: target, UseProxy: true})
	if err != nil {
		t.Fatalf("Fetch via relay: %v", err)
	}
	if string(body) != "relayed" || gotKey != "secret" || gotURL != target {
		t.Fatalf("relay got key=%q url=%q body=%q", gotKey, gotURL, body)
	}
}

func TestRelayDisabledWithoutKey(t *testing.T) {
	r := Relay{URL: "https://proxy.scrapeops.io/v1/"}
	got, err := r.target(Request{URL: "https://example.test/a", UseProxy: true})
	if err != nil || got != "https://example.test/a" {
		t.Fatalf("relay without key should pass through, got %q, %v", got, err)
	}
}

func TestHTTPFetcherRateLimitPerHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, Relay{}, 5)
	start := time.Now()
	for i := 0; i < 7; i++ {
		if _, err := f.Fetch(context.Background(), Request{URL: srv.URL}); err != nil {
			t.Fatalf("Fetch: %v", err)
		}
	}
	// burst 5，之后每 200ms 一个令牌
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("rate limiter not applied, 7 requests took %s", elapsed)
	}
}

func TestCollyFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("<html>colly</html>"))
	}))
	defer srv.Close()

	f := NewCollyFetcher(time.Second, Relay{})
	body, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/page"})
	if err != nil || string(body) != "<html>colly</html>" {
		t.Fatalf("colly Fetch = %q, %v", body, err)
	}

	_, err = f.Fetch(context.Background(), Request{URL: srv.URL + "/missing"})
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 FetchError, got %v", err)
	}
}
