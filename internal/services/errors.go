package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// ErrorKind classifies a remote failure.
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindNotFound
	KindConflict
	KindRateLimited
	KindTransient
)

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate limited"
	case KindTransient:
		return "transient"
	default:
		return "permanent"
	}
}

// RemoteError is a classified failure from Spotify or Dropbox.
type RemoteError struct {
	Kind       ErrorKind
	RetryAfter time.Duration // set for [KindRateLimited] when the server asked for a delay
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first [*RemoteError] in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return KindPermanent, false
}

// IsRetryable reports whether err is rate limiting or a transient failure.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindRateLimited || kind == KindTransient)
}

// IsNotFound reports whether err is a remote not-found.
func IsNotFound(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindNotFound
}

// IsConflict reports whether err is a remote conflict.
func IsConflict(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindConflict
}

// ClassifyStatus maps an HTTP status to a [*RemoteError]. header may be nil.
func ClassifyStatus(status int, header http.Header, message string) *RemoteError {
	re := &RemoteError{Kind: KindPermanent, Message: message}
	if re.Message == "" {
		re.Message = fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	}

	switch {
	case status == http.StatusTooManyRequests:
		re.Kind = KindRateLimited
		if header != nil {
			re.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		}
	case status >= 500:
		re.Kind = KindTransient
	case status == http.StatusNotFound:
		re.Kind = KindNotFound
	case status == http.StatusConflict:
		re.Kind = KindConflict
	}
	return re
}

// classifyError converts transport, OAuth and Spotify client errors into a [*RemoteError].
//
// Context cancellation is returned unchanged so it is never retried.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		kind := KindPermanent
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			kind = KindTransient
		}
		return &RemoteError{Kind: kind, Message: "token refresh failed", Err: err}
	}

	var spotifyErr spotify.Error
	if errors.As(err, &spotifyErr) {
		re := ClassifyStatus(spotifyErr.Status, nil, spotifyErr.Message)
		re.Err = err
		return re
	}

	var spotifyErrPtr *spotify.Error
	if errors.As(err, &spotifyErrPtr) && spotifyErrPtr != nil {
		re := ClassifyStatus(spotifyErrPtr.Status, nil, spotifyErrPtr.Message)
		re.Err = err
		return re
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &RemoteError{Kind: KindTransient, Err: err}
	}

	return &RemoteError{Kind: KindPermanent, Err: err}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
