package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

func TestClassifyStatus(t *testing.T) {
	tc := []struct {
		name       string
		status     int
		retryAfter string
		want       ErrorKind
		wantDelay  time.Duration
	}{
		{name: "rate limited", status: 429, retryAfter: "7", want: KindRateLimited, wantDelay: 7 * time.Second},
		{name: "rate limited without header", status: 429, want: KindRateLimited},
		{name: "server error", status: 503, want: KindTransient},
		{name: "not found", status: 404, want: KindNotFound},
		{name: "conflict", status: 409, want: KindConflict},
		{name: "unauthorized", status: 401, want: KindPermanent},
		{name: "bad request", status: 400, want: KindPermanent},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.retryAfter != "" {
				header.Set("Retry-After", tt.retryAfter)
			}

			re := ClassifyStatus(tt.status, header, "")
			if re.Kind != tt.want {
				t.Errorf("kind = %v, want %v", re.Kind, tt.want)
			}
			if re.RetryAfter != tt.wantDelay {
				t.Errorf("retry after = %v, want %v", re.RetryAfter, tt.wantDelay)
			}
			if re.Message == "" {
				t.Error("expected a default message")
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if err := classifyError(nil); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("context cancellation is not wrapped", func(t *testing.T) {
		err := classifyError(fmt.Errorf("call: %w", context.Canceled))
		if _, ok := KindOf(err); ok {
			t.Errorf("cancellation should not become a RemoteError, got %v", err)
		}
		if IsRetryable(err) {
			t.Error("cancellation should not be retryable")
		}
	})

	t.Run("transport errors are transient", func(t *testing.T) {
		err := classifyError(&url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}})
		if kind, _ := KindOf(err); kind != KindTransient {
			t.Errorf("expected transient, got %v", kind)
		}
	})

	t.Run("token refresh failures are permanent", func(t *testing.T) {
		err := classifyError(&url.Error{Op: "Get", URL: "http://x", Err: &oauth2.RetrieveError{
			Response: &http.Response{StatusCode: 400},
		}})
		if kind, _ := KindOf(err); kind != KindPermanent {
			t.Errorf("expected permanent, got %v", kind)
		}
	})

	t.Run("spotify errors use their status", func(t *testing.T) {
		err := classifyError(spotify.Error{Status: 429, Message: "slow down"})
		if kind, _ := KindOf(err); kind != KindRateLimited {
			t.Errorf("expected rate limited, got %v", kind)
		}
		if !IsRetryable(err) {
			t.Error("expected retryable")
		}
	})

	t.Run("remote errors pass through", func(t *testing.T) {
		orig := &RemoteError{Kind: KindConflict}
		if err := classifyError(fmt.Errorf("wrapped: %w", orig)); !IsConflict(err) {
			t.Errorf("expected conflict, got %v", err)
		}
	})

	t.Run("unknown errors are permanent", func(t *testing.T) {
		err := classifyError(errors.New("decode failed"))
		if kind, ok := KindOf(err); !ok || kind != KindPermanent {
			t.Errorf("expected permanent, got %v", err)
		}
	})
}

func TestRemoteError(t *testing.T) {
	inner := errors.New("boom")
	err := &RemoteError{Kind: KindTransient, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the inner error")
	}
	if err.Error() != "transient: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if (&RemoteError{Kind: KindNotFound}).Error() != "not found" {
		t.Error("expected kind name when message is empty")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("expected 3s, got %v", got)
	}
	if got := parseRetryAfter("-1"); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 {
		t.Errorf("expected positive delay for http date, got %v", got)
	}
}
